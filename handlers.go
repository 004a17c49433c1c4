package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"bitbucket.org/mmdatafocus/pricing_backend/workflow"
	"github.com/gin-gonic/gin"
)

// services wires the workflow layer against the shared DB handle. Built per
// request because the DB connects after the listener is already up.
type services struct {
	Resolver   *workflow.ScopeResolver
	Overrides  *workflow.OverrideManager
	Calculator *workflow.PricingCalculator
	Billing    *workflow.BillingEngine
	Audit      *workflow.AuditTrail
}

func buildServices() *services {
	db := config.GetDB()
	logger := config.GetLogger()
	audit := workflow.NewAuditTrail(db, logger)
	resolver := workflow.NewScopeResolver(db, logger)
	overrides := workflow.NewOverrideManager(db, logger, audit)
	calculator := workflow.NewPricingCalculator(db, logger, resolver, overrides)
	billing := workflow.NewBillingEngine(db, logger, calculator, audit, config.GetRedisLock())
	return &services{
		Resolver:   resolver,
		Overrides:  overrides,
		Calculator: calculator,
		Billing:    billing,
		Audit:      audit,
	}
}

// httpStatusForError maps business-state sentinels onto HTTP codes so clients
// can distinguish conflicts from bad input without parsing messages.
func httpStatusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound),
		errors.Is(err, workflow.ErrNoApplicablePricingModel):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrOverrideAlreadyApproved),
		errors.Is(err, workflow.ErrActiveCycleExists),
		errors.Is(err, workflow.ErrInvalidCycleTransition),
		errors.Is(err, workflow.ErrCycleNotActive),
		errors.Is(err, workflow.ErrCycleCurrencyMismatch),
		errors.Is(err, workflow.ErrAuditEntryAlreadyReversed):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrPricingModelInactive),
		errors.Is(err, workflow.ErrUnknownModelType),
		errors.Is(err, workflow.ErrHybridComponentNested),
		errors.Is(err, workflow.ErrAuditEntryNotReversible),
		errors.Is(err, workflow.ErrAuditEntryNoPreviousState),
		errors.Is(err, workflow.ErrEndDateRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(httpStatusForError(err), gin.H{"error": err.Error()})
}

func tenantFromRequest(c *gin.Context) (string, bool) {
	tenantId, ok := utils.GetTenantIdFromContext(c.Request.Context())
	if !ok || tenantId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Tenant-Id header is required"})
		return "", false
	}
	return tenantId, true
}

func actorFromRequest(c *gin.Context) (string, string) {
	actorId, _ := utils.GetActorIdFromContext(c.Request.Context())
	actorRole, _ := utils.GetActorRoleFromContext(c.Request.Context())
	return actorId, actorRole
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func paginationFromQuery(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func timeFromQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
		return nil, false
	}
	return &t, true
}

func calculatePriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		var req workflow.CalculateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := buildServices().Calculator.CalculatePrice(c.Request.Context(), tenantId, req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func resolvePricingModelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		var req workflow.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		modelId, err := buildServices().Resolver.ResolvePricingModel(c.Request.Context(), tenantId, req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pricing_model_id": modelId})
	}
}

func createOverrideHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		var input workflow.CreateOverrideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		override, err := buildServices().Overrides.CreateOverride(c.Request.Context(), tenantId, input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, override)
	}
}

func approveOverrideHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		overrideId, ok := intParam(c, "id")
		if !ok {
			return
		}
		actorId, actorRole := actorFromRequest(c)
		if actorId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Actor-Id header is required"})
			return
		}
		override, err := buildServices().Overrides.ApproveOverride(c.Request.Context(), tenantId, overrideId, actorId, actorRole)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, override)
	}
}

type deactivateOverrideRequest struct {
	Reason string `json:"reason"`
}

func deactivateOverrideHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		overrideId, ok := intParam(c, "id")
		if !ok {
			return
		}
		var req deactivateOverrideRequest
		_ = c.ShouldBindJSON(&req)
		actorId, actorRole := actorFromRequest(c)
		override, err := buildServices().Overrides.DeactivateOverride(c.Request.Context(), tenantId, overrideId, actorId, actorRole, req.Reason)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, override)
	}
}

func listActiveOverridesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		pricingModelId, err := strconv.Atoi(c.Query("pricing_model_id"))
		if err != nil || pricingModelId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pricing_model_id is required"})
			return
		}
		scopeType := models.ScopeType(c.Query("scope_type"))
		if !scopeType.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scope_type is required"})
			return
		}
		var scopeId *string
		if v := c.Query("scope_id"); v != "" {
			scopeId = &v
		}
		at, ok := timeFromQuery(c, "at")
		if !ok {
			return
		}
		evaluatedAt := time.Now().UTC()
		if at != nil {
			evaluatedAt = at.UTC()
		}
		overrides, err := buildServices().Overrides.GetActiveOverrides(c.Request.Context(), tenantId, pricingModelId, scopeType, scopeId, evaluatedAt)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"overrides": overrides})
	}
}

func overrideHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		pricingModelId, err := strconv.Atoi(c.Query("pricing_model_id"))
		if err != nil || pricingModelId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pricing_model_id is required"})
			return
		}
		scopeId, err := strconv.Atoi(c.Query("scope_id"))
		if err != nil || scopeId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scope_id is required"})
			return
		}
		overrides, err := buildServices().Overrides.GetOverrideHistory(c.Request.Context(), tenantId, pricingModelId, scopeId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"overrides": overrides})
	}
}

func createCycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		var input workflow.CreateCycleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		actorId, actorRole := actorFromRequest(c)
		cycle, err := buildServices().Billing.CreateBillingCycle(c.Request.Context(), tenantId, input, actorId, actorRole)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cycle)
	}
}

func listCyclesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		filters := workflow.CycleFilters{
			Status:    models.BillingCycleStatus(c.Query("status")),
			ScopeType: models.ScopeType(c.Query("scope_type")),
			ScopeId:   c.Query("scope_id"),
		}
		limit, offset := paginationFromQuery(c)
		cycles, err := buildServices().Billing.GetBillingCycles(c.Request.Context(), tenantId, filters, limit, offset)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"billing_cycles": cycles})
	}
}

func getCycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		cycle, err := buildServices().Billing.GetBillingCycle(c.Request.Context(), tenantId, cycleId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

func addBillingItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		var input workflow.AddItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		input.BillingCycleId = cycleId
		actorId, actorRole := actorFromRequest(c)
		item, err := buildServices().Billing.AddBillingItem(c.Request.Context(), tenantId, input, actorId, actorRole)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func listBillingItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		items, err := buildServices().Billing.GetBillingItems(c.Request.Context(), tenantId, cycleId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"billing_items": items})
	}
}

func cycleSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		summary, err := buildServices().Billing.GetCycleSummary(c.Request.Context(), tenantId, cycleId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func cycleStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		f, err := buildServices().Billing.ExportCycleStatement(c.Request.Context(), tenantId, cycleId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=statement-"+strconv.Itoa(cycleId)+".xlsx")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "handlers.go", "cycleStatementHandler", "write xlsx", cycleId, err)
		}
	}
}

func closeCycleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		actorId, actorRole := actorFromRequest(c)
		cycle, err := buildServices().Billing.CloseBillingCycle(c.Request.Context(), tenantId, cycleId, actorId, actorRole)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

type updateCycleStatusRequest struct {
	Status models.BillingCycleStatus `json:"status" binding:"required"`
}

func updateCycleStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		cycleId, ok := intParam(c, "id")
		if !ok {
			return
		}
		var req updateCycleStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		actorId, actorRole := actorFromRequest(c)
		cycle, err := buildServices().Billing.UpdateCycleStatus(c.Request.Context(), tenantId, cycleId, req.Status, actorId, actorRole)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cycle)
	}
}

func auditHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		entityType := c.Query("entity_type")
		entityId := c.Query("entity_id")
		if entityType == "" || entityId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity_type and entity_id are required"})
			return
		}
		limit, offset := paginationFromQuery(c)
		entries, err := buildServices().Audit.GetAuditHistory(c.Request.Context(), tenantId, entityType, entityId, limit, offset)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_logs": entries})
	}
}

func auditSearchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		from, ok := timeFromQuery(c, "from")
		if !ok {
			return
		}
		to, ok := timeFromQuery(c, "to")
		if !ok {
			return
		}
		filters := workflow.AuditSearchFilters{
			EntityType: c.Query("entity_type"),
			Action:     c.Query("action"),
			ActorId:    c.Query("actor_id"),
			ActorRole:  c.Query("actor_role"),
			From:       from,
			To:         to,
		}
		limit, offset := paginationFromQuery(c)
		entries, err := buildServices().Audit.SearchAuditLogs(c.Request.Context(), tenantId, filters, limit, offset)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"audit_logs": entries})
	}
}

func reverseAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantId, ok := tenantFromRequest(c)
		if !ok {
			return
		}
		auditLogId, ok := intParam(c, "id")
		if !ok {
			return
		}
		actorId, actorRole := actorFromRequest(c)
		if actorId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Actor-Id header is required"})
			return
		}
		entry, err := buildServices().Audit.ReverseAction(c.Request.Context(), tenantId, auditLogId, actorId, actorRole)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

type outboxReplayRequest struct {
	TenantId string `json:"tenant_id"`
	RecordId int    `json:"record_id"`
}

// outboxReplayHandler re-queues an outbox row (typically one marked DEAD) for
// immediate redelivery.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.TenantId == "" || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and record_id are required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.OutboxMessage{}).
			Where("id = ? AND tenant_id = ?", req.RecordId, req.TenantId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"is_processed":       false,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tenant_id":       req.TenantId,
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}
