package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuditTrail appends immutable mutation records and supports single-level
// reversal: the original entry is stamped once, and the compensating entry it
// produces can never itself be reversed.
type AuditTrail struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewAuditTrail(db *gorm.DB, logger *logrus.Logger) *AuditTrail {
	return &AuditTrail{DB: db, Logger: logger}
}

// AuditEntry is the caller-supplied portion of a log record.
type AuditEntry struct {
	EntityType    string
	EntityId      string
	Action        string
	ActorId       string
	ActorRole     string
	PreviousState models.JSONMap
	NewState      models.JSONMap
	Reason        *string
	IsReversible  *bool
}

// snapshotOf converts an entity into the generic state map stored on audit
// rows, via a json round-trip so gorm/json tags decide the field names.
func snapshotOf(v any) models.JSONMap {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m models.JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func (a *AuditTrail) LogAction(ctx context.Context, tenantId string, entry AuditEntry) (*models.PricingAuditLog, error) {
	return a.LogActionTx(ctx, a.DB, tenantId, entry)
}

// LogActionTx appends within the caller's transaction so audit rows commit or
// roll back together with the mutation they describe.
func (a *AuditTrail) LogActionTx(ctx context.Context, tx *gorm.DB, tenantId string, entry AuditEntry) (*models.PricingAuditLog, error) {
	if tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	reversible := entry.IsReversible
	if reversible == nil {
		reversible = utils.NewTrue()
	}
	record := models.PricingAuditLog{
		TenantId:      tenantId,
		EntityType:    entry.EntityType,
		EntityId:      entry.EntityId,
		Action:        entry.Action,
		ActorId:       entry.ActorId,
		ActorRole:     entry.ActorRole,
		PreviousState: entry.PreviousState,
		NewState:      entry.NewState,
		Reason:        entry.Reason,
		IsReversible:  reversible,
	}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("append audit log: %w", err)
	}
	return &record, nil
}

// GetAuditHistory returns one entity's entries, newest first.
func (a *AuditTrail) GetAuditHistory(ctx context.Context, tenantId, entityType, entityId string, limit, offset int) ([]models.PricingAuditLog, error) {
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	var entries []models.PricingAuditLog
	err := a.DB.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantId, entityType, entityId).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AuditSearchFilters narrow SearchAuditLogs. Zero values mean "any".
type AuditSearchFilters struct {
	EntityType string
	Action     string
	ActorId    string
	ActorRole  string
	From       *time.Time
	To         *time.Time
}

func (a *AuditTrail) SearchAuditLogs(ctx context.Context, tenantId string, filters AuditSearchFilters, limit, offset int) ([]models.PricingAuditLog, error) {
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	dbCtx := a.DB.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if filters.EntityType != "" {
		dbCtx = dbCtx.Where("entity_type = ?", filters.EntityType)
	}
	if filters.Action != "" {
		dbCtx = dbCtx.Where("action = ?", filters.Action)
	}
	if filters.ActorId != "" {
		dbCtx = dbCtx.Where("actor_id = ?", filters.ActorId)
	}
	if filters.ActorRole != "" {
		dbCtx = dbCtx.Where("actor_role = ?", filters.ActorRole)
	}
	if filters.From != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *filters.To)
	}
	var entries []models.PricingAuditLog
	err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// validateReversal checks the business preconditions for reversing an entry.
func validateReversal(entry *models.PricingAuditLog) error {
	if entry.IsReversible == nil || !*entry.IsReversible {
		return ErrAuditEntryNotReversible
	}
	if entry.ReversedBy != nil {
		return ErrAuditEntryAlreadyReversed
	}
	if entry.PreviousState == nil {
		return ErrAuditEntryNoPreviousState
	}
	return nil
}

// ReverseAction stamps the original entry (guarded, so exactly one reversal
// wins under concurrency) and appends a compensating entry with the state
// snapshots swapped. The compensating entry is never reversible.
func (a *AuditTrail) ReverseAction(ctx context.Context, tenantId string, auditLogId int, reversedBy, reversedByRole string) (*models.PricingAuditLog, error) {
	var compensating *models.PricingAuditLog

	err := a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.PricingAuditLog
		if err := tx.Where("tenant_id = ? AND id = ?", tenantId, auditLogId).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if err := validateReversal(&entry); err != nil {
			return err
		}

		now := time.Now().UTC()
		// Conditional update: loses cleanly if a concurrent reversal got
		// there first.
		res := tx.Model(&models.PricingAuditLog{}).
			Where("tenant_id = ? AND id = ? AND reversed_by IS NULL AND is_reversible = ?", tenantId, auditLogId, true).
			Updates(map[string]interface{}{
				"reversed_by": reversedBy,
				"reversed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAuditEntryAlreadyReversed
		}

		reason := fmt.Sprintf("reversal of audit entry %d", entry.ID)
		record := models.PricingAuditLog{
			TenantId:      tenantId,
			EntityType:    entry.EntityType,
			EntityId:      entry.EntityId,
			Action:        models.AuditActionReverse,
			ActorId:       reversedBy,
			ActorRole:     reversedByRole,
			PreviousState: entry.NewState,
			NewState:      entry.PreviousState,
			Reason:        &reason,
			IsReversible:  utils.NewFalse(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		compensating = &record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return compensating, nil
}
