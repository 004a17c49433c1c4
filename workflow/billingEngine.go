package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"github.com/bsm/redislock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BillingEngine turns calculated prices into billing items inside billing
// cycles and drives the cycle state machine. Cycle mutations are serialized
// per cycle with a MySQL advisory lock on the mutation transaction; a Redis
// lock is layered on top as a best-effort optimization only.
type BillingEngine struct {
	DB         *gorm.DB
	Logger     *logrus.Logger
	Calculator *PricingCalculator
	Audit      *AuditTrail
	Locker     *redislock.Client
}

func NewBillingEngine(db *gorm.DB, logger *logrus.Logger, calculator *PricingCalculator, audit *AuditTrail, locker *redislock.Client) *BillingEngine {
	return &BillingEngine{DB: db, Logger: logger, Calculator: calculator, Audit: audit, Locker: locker}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// enqueueOutbox appends a billing lifecycle event in the caller's transaction.
// The OutboxDispatcher publishes it after commit; core operations never talk
// to the broker directly.
func enqueueOutbox(ctx context.Context, tx *gorm.DB, tenantId, eventType string, payload any) error {
	data, err := utils.MarshalToJSON(payload)
	if err != nil {
		return err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := models.OutboxMessage{
		TenantId:      tenantId,
		EventType:     eventType,
		Payload:       data,
		CorrelationId: correlationId,
		PublishStatus: models.OutboxPublishStatusPending,
	}
	return tx.Create(&msg).Error
}

// obtainCycleLock takes the best-effort Redis lock. Reliability must not
// depend on Redis: the advisory lock inside the transaction is the authority.
func (e *BillingEngine) obtainCycleLock(ctx context.Context, tenantId string, cycleId int) *redislock.Lock {
	if e.Locker == nil {
		return nil
	}
	lock, err := e.Locker.Obtain(ctx, fmt.Sprintf("billing:%s:%d", tenantId, cycleId), 30*time.Second, nil)
	if err != nil {
		if err != redislock.ErrNotObtained {
			e.Logger.WithFields(logrus.Fields{
				"tenant_id": tenantId,
				"cycle_id":  cycleId,
			}).Warn("error obtaining redis lock; proceeding with advisory lock only: " + err.Error())
		}
		return nil
	}
	return lock
}

func (e *BillingEngine) releaseCycleLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	if err := lock.Release(ctx); err != nil {
		e.Logger.Warn("failed to release redis lock: " + err.Error())
	}
}

type CreateCycleInput struct {
	ScopeId   string                  `json:"scope_id"`
	ScopeType models.ScopeType        `json:"scope_type" binding:"required"`
	CycleType models.BillingCycleType `json:"cycle_type" binding:"required"`
	StartDate time.Time               `json:"start_date" binding:"required"`
	EndDate   *time.Time              `json:"end_date"`
}

func (e *BillingEngine) CreateBillingCycle(ctx context.Context, tenantId string, input CreateCycleInput, actorId, actorRole string) (*models.BillingCycle, error) {
	if tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if !input.CycleType.IsValid() {
		return nil, fmt.Errorf("unknown cycle type %q", input.CycleType)
	}
	if !input.ScopeType.IsValid() {
		return nil, fmt.Errorf("unknown scope type %q", input.ScopeType)
	}

	endDate := time.Time{}
	if input.EndDate != nil {
		endDate = *input.EndDate
	} else {
		if input.CycleType == models.CycleTypeCustom {
			return nil, ErrEndDateRequired
		}
		computed, err := models.CycleEndDate(input.CycleType, input.StartDate)
		if err != nil {
			return nil, err
		}
		endDate = computed
	}

	marker := "1"
	cycle := models.BillingCycle{
		TenantId:     tenantId,
		ScopeId:      input.ScopeId,
		ScopeType:    input.ScopeType,
		CycleType:    input.CycleType,
		StartDate:    input.StartDate,
		EndDate:      endDate,
		Status:       models.CycleStatusActive,
		ActiveMarker: &marker,
	}

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&cycle).Error; err != nil {
			if isDuplicateKeyErr(err) {
				// idx_one_active_cycle: another active cycle already covers
				// this (tenant, scope, scopeType).
				return ErrActiveCycleExists
			}
			return err
		}
		if _, err := e.Audit.LogActionTx(ctx, tx, tenantId, AuditEntry{
			EntityType: models.AuditEntityBillingCycle,
			EntityId:   fmt.Sprint(cycle.ID),
			Action:     models.AuditActionCreate,
			ActorId:    actorId,
			ActorRole:  actorRole,
			NewState:   snapshotOf(cycle),
		}); err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, tenantId, models.OutboxEventCycleCreated, cycle)
	})
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (e *BillingEngine) GetBillingCycle(ctx context.Context, tenantId string, cycleId int) (*models.BillingCycle, error) {
	return utils.FetchModel[models.BillingCycle](ctx, tenantId, cycleId)
}

// CycleFilters narrow GetBillingCycles. Zero values mean "any".
type CycleFilters struct {
	Status    models.BillingCycleStatus
	ScopeType models.ScopeType
	ScopeId   string
}

func (e *BillingEngine) GetBillingCycles(ctx context.Context, tenantId string, filters CycleFilters, limit, offset int) ([]models.BillingCycle, error) {
	if limit <= 0 {
		limit = config.DefaultPageSize
	}
	dbCtx := e.DB.WithContext(ctx).Where("tenant_id = ?", tenantId)
	if filters.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filters.Status)
	}
	if filters.ScopeType != "" {
		dbCtx = dbCtx.Where("scope_type = ?", filters.ScopeType)
	}
	if filters.ScopeId != "" {
		dbCtx = dbCtx.Where("scope_id = ?", filters.ScopeId)
	}
	var cycles []models.BillingCycle
	err := dbCtx.Order("start_date DESC, id DESC").Limit(limit).Offset(offset).Find(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

type AddItemInput struct {
	BillingCycleId int              `json:"billing_cycle_id" binding:"required"`
	PricingModelId *int             `json:"pricing_model_id"`
	ItemType       string           `json:"item_type" binding:"required"`
	Quantity       decimal.Decimal  `json:"quantity"`
	ScopeType      models.ScopeType `json:"scope_type" binding:"required"`
	ScopeId        *string          `json:"scope_id"`
	DeploymentType *string          `json:"deployment_type"`
	Description    string           `json:"description"`
	Metadata       map[string]any   `json:"metadata"`
	EvaluatedAt    *time.Time       `json:"evaluated_at"`
}

// AddBillingItem prices the request and persists the item. The add is
// mutually exclusive with closing the cycle: both hold the cycle's advisory
// lock and re-check cycle status inside their transaction.
func (e *BillingEngine) AddBillingItem(ctx context.Context, tenantId string, input AddItemInput, actorId, actorRole string) (*models.BillingItem, error) {
	if tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	redisLock := e.obtainCycleLock(ctx, tenantId, input.BillingCycleId)
	defer e.releaseCycleLock(ctx, redisLock)

	price, err := e.Calculator.CalculatePrice(ctx, tenantId, CalculateRequest{
		PricingModelId: input.PricingModelId,
		ScopeType:      input.ScopeType,
		ScopeId:        input.ScopeId,
		DeploymentType: input.DeploymentType,
		ItemType:       input.ItemType,
		Quantity:       input.Quantity,
		Metadata:       input.Metadata,
		EvaluatedAt:    input.EvaluatedAt,
	})
	if err != nil {
		return nil, err
	}

	// The effective, rule-adjusted unit price is stored, not the raw config
	// price; the raw breakdown stays available in metadata.
	unitPrice := decimal.Zero
	if !input.Quantity.IsZero() {
		unitPrice = price.FinalPrice.DivRound(input.Quantity, 4)
	}

	metadata := models.JSONMap{}
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	metadata["base_price"] = price.BasePrice
	metadata["breakdown"] = price.Breakdown
	metadata["adjustments"] = price.Adjustments
	metadata["applied_rules"] = price.AppliedRules
	metadata["applied_overrides"] = price.AppliedOverrides
	metadata["evaluated_at"] = price.EvaluatedAt

	item := models.BillingItem{
		TenantId:       tenantId,
		BillingCycleId: input.BillingCycleId,
		PricingModelId: price.PricingModelId,
		ItemType:       input.ItemType,
		Description:    input.Description,
		Quantity:       input.Quantity,
		UnitPrice:      unitPrice,
		TotalAmount:    price.FinalPrice,
		Currency:       price.Currency,
		Metadata:       metadata,
	}

	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBillingLock(tx, tenantId, input.BillingCycleId); err != nil {
			return err
		}
		defer ReleaseBillingLock(tx, tenantId, input.BillingCycleId)

		var cycle models.BillingCycle
		if err := tx.Where("tenant_id = ? AND id = ?", tenantId, input.BillingCycleId).First(&cycle).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if cycle.Status != models.CycleStatusActive {
			return ErrCycleNotActive
		}

		// A cycle's items share one currency.
		if config.StrictCycleCurrency() {
			var existing models.BillingItem
			err := tx.Where("tenant_id = ? AND billing_cycle_id = ?", tenantId, input.BillingCycleId).
				Select("currency").
				Order("id ASC").
				First(&existing).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err == nil && existing.Currency != item.Currency {
				return ErrCycleCurrencyMismatch
			}
		}

		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		if _, err := e.Audit.LogActionTx(ctx, tx, tenantId, AuditEntry{
			EntityType: models.AuditEntityBillingItem,
			EntityId:   fmt.Sprint(item.ID),
			Action:     models.AuditActionAddItem,
			ActorId:    actorId,
			ActorRole:  actorRole,
			NewState:   snapshotOf(item),
		}); err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, tenantId, models.OutboxEventItemAdded, item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CloseBillingCycle transitions active -> closed. Any other starting status
// fails with ErrCycleNotActive.
func (e *BillingEngine) CloseBillingCycle(ctx context.Context, tenantId string, cycleId int, actorId, actorRole string) (*models.BillingCycle, error) {
	cycle, err := e.transitionCycle(ctx, tenantId, cycleId, models.CycleStatusClosed, actorId, actorRole, models.AuditActionClose, models.OutboxEventCycleClosed)
	if err != nil {
		if errors.Is(err, ErrInvalidCycleTransition) {
			return nil, ErrCycleNotActive
		}
		return nil, err
	}
	return cycle, nil
}

// UpdateCycleStatus performs a generic transition per the state machine,
// audited with before/after state.
func (e *BillingEngine) UpdateCycleStatus(ctx context.Context, tenantId string, cycleId int, next models.BillingCycleStatus, actorId, actorRole string) (*models.BillingCycle, error) {
	return e.transitionCycle(ctx, tenantId, cycleId, next, actorId, actorRole, models.AuditActionStatusChange, models.OutboxEventCycleStatusChange)
}

func (e *BillingEngine) transitionCycle(ctx context.Context, tenantId string, cycleId int, next models.BillingCycleStatus, actorId, actorRole, auditAction, outboxEvent string) (*models.BillingCycle, error) {
	redisLock := e.obtainCycleLock(ctx, tenantId, cycleId)
	defer e.releaseCycleLock(ctx, redisLock)

	var updated *models.BillingCycle
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBillingLock(tx, tenantId, cycleId); err != nil {
			return err
		}
		defer ReleaseBillingLock(tx, tenantId, cycleId)

		var cycle models.BillingCycle
		if err := tx.Where("tenant_id = ? AND id = ?", tenantId, cycleId).First(&cycle).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		if !cycle.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidCycleTransition, cycle.Status, next)
		}

		previous := snapshotOf(cycle)

		// Conditional update: succeeds only from the status we just read, so
		// a concurrent transition loses cleanly.
		res := tx.Model(&models.BillingCycle{}).
			Where("tenant_id = ? AND id = ? AND status = ?", tenantId, cycleId, cycle.Status).
			Updates(map[string]interface{}{
				"status":        next,
				"active_marker": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: cycle %d changed concurrently", ErrInvalidCycleTransition, cycleId)
		}

		cycle.Status = next
		cycle.ActiveMarker = nil
		updated = &cycle

		if _, err := e.Audit.LogActionTx(ctx, tx, tenantId, AuditEntry{
			EntityType:    models.AuditEntityBillingCycle,
			EntityId:      fmt.Sprint(cycleId),
			Action:        auditAction,
			ActorId:       actorId,
			ActorRole:     actorRole,
			PreviousState: previous,
			NewState:      snapshotOf(cycle),
		}); err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, tenantId, outboxEvent, cycle)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type CycleSummary struct {
	CycleId   int                       `json:"cycle_id"`
	Status    models.BillingCycleStatus `json:"status"`
	StartDate time.Time                 `json:"start_date"`
	EndDate   time.Time                 `json:"end_date"`
	ItemCount int64                     `json:"item_count"`
	Subtotal  decimal.Decimal           `json:"subtotal"`
	Total     decimal.Decimal           `json:"total"`
	Currency  string                    `json:"currency"`
}

// GetCycleSummary aggregates the cycle's items. The currency comes from the
// first item, which is safe because AddBillingItem enforces one currency per
// cycle.
func (e *BillingEngine) GetCycleSummary(ctx context.Context, tenantId string, cycleId int) (*CycleSummary, error) {
	cycle, err := e.GetBillingCycle(ctx, tenantId, cycleId)
	if err != nil {
		return nil, err
	}

	type aggregate struct {
		ItemCount int64
		Subtotal  decimal.Decimal
	}
	var agg aggregate
	err = e.DB.WithContext(ctx).Model(&models.BillingItem{}).
		Select("COUNT(id) AS item_count, COALESCE(SUM(total_amount), 0) AS subtotal").
		Where("tenant_id = ? AND billing_cycle_id = ?", tenantId, cycleId).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	currency := models.DefaultCurrency
	if agg.ItemCount > 0 {
		var first models.BillingItem
		if err := e.DB.WithContext(ctx).
			Where("tenant_id = ? AND billing_cycle_id = ?", tenantId, cycleId).
			Select("currency").
			Order("id ASC").
			First(&first).Error; err != nil {
			return nil, err
		}
		currency = first.Currency
	}

	return &CycleSummary{
		CycleId:   cycle.ID,
		Status:    cycle.Status,
		StartDate: cycle.StartDate,
		EndDate:   cycle.EndDate,
		ItemCount: agg.ItemCount,
		Subtotal:  agg.Subtotal,
		Total:     agg.Subtotal,
		Currency:  currency,
	}, nil
}

// GetBillingItems lists a cycle's items, oldest first (statement order).
func (e *BillingEngine) GetBillingItems(ctx context.Context, tenantId string, cycleId int) ([]models.BillingItem, error) {
	var items []models.BillingItem
	err := e.DB.WithContext(ctx).
		Where("tenant_id = ? AND billing_cycle_id = ?", tenantId, cycleId).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
