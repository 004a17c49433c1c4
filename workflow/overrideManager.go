package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OverrideManager owns the pricing override lifecycle. Every transition is
// audited in the same transaction as the mutation.
type OverrideManager struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Audit  *AuditTrail
}

func NewOverrideManager(db *gorm.DB, logger *logrus.Logger, audit *AuditTrail) *OverrideManager {
	return &OverrideManager{DB: db, Logger: logger, Audit: audit}
}

type CreateOverrideInput struct {
	PricingModelId   int                  `json:"pricing_model_id" binding:"required"`
	ScopeId          int                  `json:"scope_id" binding:"required"`
	OverrideType     string               `json:"override_type" binding:"required"`
	OverrideValue    models.PricingConfig `json:"override_value"`
	Reason           string               `json:"reason"`
	EffectiveFrom    *time.Time           `json:"effective_from"`
	EffectiveTo      *time.Time           `json:"effective_to"`
	RequiresApproval bool                 `json:"requires_approval"`
	CreatedBy        string               `json:"created_by" binding:"required"`
	CreatedByRole    string               `json:"created_by_role"`
}

func (m *OverrideManager) CreateOverride(ctx context.Context, tenantId string, input CreateOverrideInput) (*models.PricingOverride, error) {
	if tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := utils.ValidateResourceId[models.PricingModel](ctx, tenantId, input.PricingModelId); err != nil {
		return nil, fmt.Errorf("pricing model: %w", err)
	}
	if err := utils.ValidateResourceId[models.PricingScope](ctx, tenantId, input.ScopeId); err != nil {
		return nil, fmt.Errorf("pricing scope: %w", err)
	}

	effectiveFrom := input.EffectiveFrom
	if effectiveFrom == nil {
		now := time.Now().UTC()
		effectiveFrom = &now
	}

	override := models.PricingOverride{
		TenantId:       tenantId,
		PricingModelId: input.PricingModelId,
		ScopeId:        input.ScopeId,
		OverrideType:   input.OverrideType,
		OverrideValue:  input.OverrideValue,
		Reason:         input.Reason,
		EffectiveFrom:  effectiveFrom,
		EffectiveTo:    input.EffectiveTo,
		IsActive:       utils.NewFalse(),
		CreatedBy:      input.CreatedBy,
		CreatedByRole:  input.CreatedByRole,
	}
	if !input.RequiresApproval {
		// Self-approved on creation.
		approvedAt := time.Now().UTC()
		override.ApprovedBy = &input.CreatedBy
		override.ApprovedAt = &approvedAt
		override.IsActive = utils.NewTrue()
	}

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Versions count up per (model, scope) so history reads newest-first
		// by version.
		var maxVersion *int
		if err := tx.Model(&models.PricingOverride{}).
			Where("tenant_id = ? AND pricing_model_id = ? AND scope_id = ?", tenantId, input.PricingModelId, input.ScopeId).
			Select("MAX(version)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		override.Version = 1
		if maxVersion != nil {
			override.Version = *maxVersion + 1
		}

		if err := tx.Create(&override).Error; err != nil {
			return err
		}

		reason := override.Reason
		_, err := m.Audit.LogActionTx(ctx, tx, tenantId, AuditEntry{
			EntityType: models.AuditEntityOverride,
			EntityId:   fmt.Sprint(override.ID),
			Action:     models.AuditActionCreate,
			ActorId:    input.CreatedBy,
			ActorRole:  input.CreatedByRole,
			NewState:   snapshotOf(override),
			Reason:     &reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &override, nil
}

// GetActiveOverrides returns approved, active, in-window overrides for the
// model whose scope row matches the requested targeting context. Ordered
// most-recent-first.
func (m *OverrideManager) GetActiveOverrides(ctx context.Context, tenantId string, pricingModelId int, scopeType models.ScopeType, scopeId *string, at time.Time) ([]models.PricingOverride, error) {
	q := m.DB.WithContext(ctx).
		Table("pricing_overrides").
		Select("pricing_overrides.*").
		Joins("JOIN pricing_scopes ON pricing_scopes.id = pricing_overrides.scope_id AND pricing_scopes.tenant_id = pricing_overrides.tenant_id").
		Where("pricing_overrides.tenant_id = ?", tenantId).
		Where("pricing_overrides.pricing_model_id = ?", pricingModelId).
		Where("pricing_scopes.scope_type = ?", scopeType).
		Where("pricing_overrides.approved_by IS NOT NULL").
		Where("pricing_overrides.is_active = ?", true).
		Where("pricing_overrides.effective_from IS NULL OR pricing_overrides.effective_from <= ?", at).
		Where("pricing_overrides.effective_to IS NULL OR pricing_overrides.effective_to >= ?", at)
	if scopeId != nil {
		q = q.Where("pricing_scopes.scope_id = ?", *scopeId)
	}

	var overrides []models.PricingOverride
	err := q.Order("pricing_overrides.created_at DESC, pricing_overrides.id DESC").
		Scan(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

// ApproveOverride is race-free: the conditional update only succeeds while
// approved_by is still NULL, so exactly one of any concurrent approvals wins.
func (m *OverrideManager) ApproveOverride(ctx context.Context, tenantId string, overrideId int, approvedBy, approvedByRole string) (*models.PricingOverride, error) {
	var approved *models.PricingOverride

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PricingOverride
		if err := tx.Where("tenant_id = ? AND id = ?", tenantId, overrideId).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if existing.ApprovedBy != nil {
			return ErrOverrideAlreadyApproved
		}

		now := time.Now().UTC()
		res := tx.Model(&models.PricingOverride{}).
			Where("tenant_id = ? AND id = ? AND approved_by IS NULL", tenantId, overrideId).
			Updates(map[string]interface{}{
				"approved_by": approvedBy,
				"approved_at": now,
				"is_active":   true,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent approval got there between the read and the update.
			return ErrOverrideAlreadyApproved
		}

		previous := snapshotOf(existing)
		existing.ApprovedBy = &approvedBy
		existing.ApprovedAt = &now
		existing.IsActive = utils.NewTrue()
		approved = &existing

		_, err := m.Audit.LogActionTx(ctx, tx, tenantId, AuditEntry{
			EntityType:    models.AuditEntityOverride,
			EntityId:      fmt.Sprint(overrideId),
			Action:        models.AuditActionApprove,
			ActorId:       approvedBy,
			ActorRole:     approvedByRole,
			PreviousState: previous,
			NewState:      snapshotOf(existing),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

func (m *OverrideManager) DeactivateOverride(ctx context.Context, tenantId string, overrideId int, actorId, actorRole, reason string) (*models.PricingOverride, error) {
	var deactivated *models.PricingOverride

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PricingOverride
		if err := tx.Where("tenant_id = ? AND id = ?", tenantId, overrideId).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		previous := snapshotOf(existing)
		if err := tx.Model(&models.PricingOverride{}).
			Where("tenant_id = ? AND id = ?", tenantId, overrideId).
			Update("is_active", false).Error; err != nil {
			return err
		}
		existing.IsActive = utils.NewFalse()
		deactivated = &existing

		auditReason := reason
		_, err := m.Audit.LogActionTx(ctx, tx, tenantId, AuditEntry{
			EntityType:    models.AuditEntityOverride,
			EntityId:      fmt.Sprint(overrideId),
			Action:        models.AuditActionDeactivate,
			ActorId:       actorId,
			ActorRole:     actorRole,
			PreviousState: previous,
			NewState:      snapshotOf(existing),
			Reason:        &auditReason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return deactivated, nil
}

// GetOverrideHistory lists every version for (model, scope), newest first.
func (m *OverrideManager) GetOverrideHistory(ctx context.Context, tenantId string, pricingModelId, scopeId int) ([]models.PricingOverride, error) {
	var overrides []models.PricingOverride
	err := m.DB.WithContext(ctx).
		Where("tenant_id = ? AND pricing_model_id = ? AND scope_id = ?", tenantId, pricingModelId, scopeId).
		Order("version DESC, created_at DESC").
		Find(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}
