package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScopeResolver maps a targeting context to the single most specific active
// pricing model. Resolution walks the precedence list level by level and
// stops at the first level with any match; levels are never merged.
type ScopeResolver struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewScopeResolver(db *gorm.DB, logger *logrus.Logger) *ScopeResolver {
	return &ScopeResolver{DB: db, Logger: logger}
}

type ResolveRequest struct {
	ScopeType      models.ScopeType `json:"scope_type" binding:"required"`
	ScopeId        *string          `json:"scope_id"`
	DeploymentType *string          `json:"deployment_type"`
	// EvaluatedAt pins the resolution to an instant. An explicit instant in
	// the past skips the redis cache, whose entries reflect the present.
	EvaluatedAt *time.Time `json:"evaluated_at"`
}

// resolutionCacheUsable reports whether a cached present-time resolution may
// answer this request. Historical re-evaluations must go to the database.
func resolutionCacheUsable(evaluatedAt *time.Time, now time.Time) bool {
	if evaluatedAt == nil || evaluatedAt.IsZero() {
		return true
	}
	return !evaluatedAt.Before(now)
}

func (r *ScopeResolver) ResolvePricingModel(ctx context.Context, tenantId string, req ResolveRequest) (int, error) {
	if tenantId == "" {
		return 0, errors.New("tenant id is required")
	}
	if !req.ScopeType.IsValid() {
		return 0, ErrNoApplicablePricingModel
	}

	scopeId := ""
	if req.ScopeId != nil {
		scopeId = *req.ScopeId
	}
	deploymentType := ""
	if req.DeploymentType != nil {
		deploymentType = *req.DeploymentType
	}
	useCache := resolutionCacheUsable(req.EvaluatedAt, time.Now().UTC())
	if useCache {
		if modelId, ok := utils.GetCachedResolution(tenantId, string(req.ScopeType), scopeId, deploymentType); ok && modelId > 0 {
			return modelId, nil
		}
	}

	for _, candidate := range models.ResolutionPrecedence(req.ScopeType) {
		modelId, err := r.resolveAtLevel(ctx, tenantId, candidate, req)
		if err != nil {
			return 0, err
		}
		if modelId > 0 {
			if useCache {
				utils.StoreCachedResolution(tenantId, string(req.ScopeType), scopeId, deploymentType, modelId)
			}
			return modelId, nil
		}
	}
	return 0, ErrNoApplicablePricingModel
}

// resolveAtLevel picks the best active scope row of one candidate type.
// Override-flagged scopes beat plain ones at the same level; id order breaks
// remaining ties deterministically.
func (r *ScopeResolver) resolveAtLevel(ctx context.Context, tenantId string, candidate models.ScopeType, req ResolveRequest) (int, error) {
	q := r.DB.WithContext(ctx).
		Table("pricing_scopes").
		Select("pricing_scopes.pricing_model_id").
		Joins("JOIN pricing_models ON pricing_models.id = pricing_scopes.pricing_model_id AND pricing_models.tenant_id = pricing_scopes.tenant_id").
		Where("pricing_scopes.tenant_id = ?", tenantId).
		Where("pricing_scopes.scope_type = ?", candidate).
		Where("pricing_scopes.is_active = ? AND pricing_models.is_active = ?", true, true)

	if candidate == req.ScopeType && req.ScopeId != nil {
		q = q.Where("pricing_scopes.scope_id = ?", *req.ScopeId)
	}
	if candidate == models.ScopeTypeDeployment && req.DeploymentType != nil {
		q = q.Where("pricing_scopes.deployment_type = ?", *req.DeploymentType)
	}

	var modelId int
	err := q.Order("pricing_scopes.is_override DESC, pricing_scopes.id ASC").
		Limit(1).
		Scan(&modelId).Error
	if err != nil {
		return 0, err
	}
	return modelId, nil
}
