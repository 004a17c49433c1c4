package workflow

import "errors"

// Business-state errors. Callers distinguish these from driver/pool failures,
// which are never wrapped into one of these sentinels.
var (
	ErrNoApplicablePricingModel  = errors.New("no applicable pricing model")
	ErrPricingModelInactive      = errors.New("pricing model is not active")
	ErrUnknownModelType          = errors.New("unknown pricing model type")
	ErrHybridComponentNested     = errors.New("hybrid components cannot nest another hybrid model")
	ErrOverrideAlreadyApproved   = errors.New("override already approved")
	ErrAuditEntryNotReversible   = errors.New("audit entry is not reversible")
	ErrAuditEntryAlreadyReversed = errors.New("audit entry already reversed")
	ErrAuditEntryNoPreviousState = errors.New("audit entry has no previous state to restore")
	ErrCycleNotActive            = errors.New("billing cycle is not active")
	ErrInvalidCycleTransition    = errors.New("invalid billing cycle status transition")
	ErrActiveCycleExists         = errors.New("an active billing cycle already exists for this scope")
	ErrCycleCurrencyMismatch     = errors.New("billing item currency does not match cycle currency")
	ErrEndDateRequired           = errors.New("end date is required for custom cycles")
)
