package models

import (
	"fmt"
	"time"
)

type BillingCycleType string

const (
	CycleTypeDaily     BillingCycleType = "daily"
	CycleTypeWeekly    BillingCycleType = "weekly"
	CycleTypeMonthly   BillingCycleType = "monthly"
	CycleTypeQuarterly BillingCycleType = "quarterly"
	CycleTypeYearly    BillingCycleType = "yearly"
	CycleTypeCustom    BillingCycleType = "custom"
)

func (t BillingCycleType) IsValid() bool {
	switch t {
	case CycleTypeDaily, CycleTypeWeekly, CycleTypeMonthly,
		CycleTypeQuarterly, CycleTypeYearly, CycleTypeCustom:
		return true
	}
	return false
}

type BillingCycleStatus string

const (
	CycleStatusActive    BillingCycleStatus = "active"
	CycleStatusClosed    BillingCycleStatus = "closed"
	CycleStatusInvoiced  BillingCycleStatus = "invoiced"
	CycleStatusPaid      BillingCycleStatus = "paid"
	CycleStatusOverdue   BillingCycleStatus = "overdue"
	CycleStatusCancelled BillingCycleStatus = "cancelled"
)

// cycleTransitions is the closed transition table:
// active -> closed -> invoiced -> {paid | overdue}; overdue may still settle
// to paid; cancelled is reachable from every non-terminal state.
var cycleTransitions = map[BillingCycleStatus][]BillingCycleStatus{
	CycleStatusActive:    {CycleStatusClosed, CycleStatusCancelled},
	CycleStatusClosed:    {CycleStatusInvoiced, CycleStatusCancelled},
	CycleStatusInvoiced:  {CycleStatusPaid, CycleStatusOverdue, CycleStatusCancelled},
	CycleStatusOverdue:   {CycleStatusPaid, CycleStatusCancelled},
	CycleStatusPaid:      {},
	CycleStatusCancelled: {},
}

func (s BillingCycleStatus) CanTransitionTo(next BillingCycleStatus) bool {
	for _, allowed := range cycleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BillingCycle is a time-boxed accounting period for one scope.
//
// ActiveMarker backs the one-active-cycle invariant: it is "1" while the
// cycle is active and NULL otherwise, so the composite unique index
// (tenant_id, scope_id, scope_type, active_marker) admits at most one active
// row per scope while NULL rows never collide in MySQL.
type BillingCycle struct {
	ID          int                `gorm:"primary_key" json:"id"`
	TenantId    string             `gorm:"index;size:36;not null;uniqueIndex:idx_one_active_cycle" json:"tenant_id" binding:"required"`
	ScopeId     string             `gorm:"size:64;not null;uniqueIndex:idx_one_active_cycle" json:"scope_id"`
	ScopeType   ScopeType          `gorm:"type:enum('global','deployment','partner','client','merchant','agent','staff','individual','group','segment','contract');default:'global';size:20;not null;uniqueIndex:idx_one_active_cycle" json:"scope_type" binding:"required"`
	CycleType   BillingCycleType   `gorm:"type:enum('daily','weekly','monthly','quarterly','yearly','custom');default:'monthly';size:20;not null" json:"cycle_type" binding:"required"`
	StartDate   time.Time          `gorm:"index;not null" json:"start_date" binding:"required"`
	EndDate     time.Time          `gorm:"index;not null" json:"end_date"`
	Status      BillingCycleStatus `gorm:"type:enum('active','closed','invoiced','paid','overdue','cancelled');default:'active';index;size:20;not null" json:"status"`
	ActiveMarker *string           `gorm:"size:1;uniqueIndex:idx_one_active_cycle" json:"-"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// CycleEndDate computes the inclusive end instant for a cycle starting at
// startDate, anchored at start-of-day in the start date's location. Calendar
// types end one millisecond before the next period begins (a monthly cycle
// starting 2026-01-01 ends 2026-01-31T23:59:59.999).
func CycleEndDate(cycleType BillingCycleType, startDate time.Time) (time.Time, error) {
	dayStart := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, startDate.Location())

	var nextStart time.Time
	switch cycleType {
	case CycleTypeDaily:
		nextStart = dayStart.AddDate(0, 0, 1)
	case CycleTypeWeekly:
		nextStart = dayStart.AddDate(0, 0, 7)
	case CycleTypeMonthly:
		nextStart = dayStart.AddDate(0, 1, 0)
	case CycleTypeQuarterly:
		nextStart = dayStart.AddDate(0, 3, 0)
	case CycleTypeYearly:
		nextStart = dayStart.AddDate(1, 0, 0)
	case CycleTypeCustom:
		return time.Time{}, fmt.Errorf("custom cycles require an explicit end date")
	default:
		return time.Time{}, fmt.Errorf("unknown cycle type %q", cycleType)
	}

	return nextStart.Add(-time.Millisecond), nil
}
