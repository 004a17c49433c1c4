package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"github.com/shopspring/decimal"
)

func TestValidateReversal(t *testing.T) {
	actor := "ops"
	now := time.Now().UTC()

	cases := []struct {
		name     string
		entry    models.PricingAuditLog
		expected error
	}{
		{
			"reversible with previous state",
			models.PricingAuditLog{IsReversible: boolp(true), PreviousState: models.JSONMap{"status": "active"}},
			nil,
		},
		{
			"not reversible",
			models.PricingAuditLog{IsReversible: boolp(false), PreviousState: models.JSONMap{"status": "active"}},
			ErrAuditEntryNotReversible,
		},
		{
			"nil reversible flag",
			models.PricingAuditLog{PreviousState: models.JSONMap{"status": "active"}},
			ErrAuditEntryNotReversible,
		},
		{
			"already reversed",
			models.PricingAuditLog{IsReversible: boolp(true), PreviousState: models.JSONMap{"status": "active"}, ReversedBy: &actor, ReversedAt: &now},
			ErrAuditEntryAlreadyReversed,
		},
		{
			"no previous state",
			models.PricingAuditLog{IsReversible: boolp(true)},
			ErrAuditEntryNoPreviousState,
		},
	}
	for _, tc := range cases {
		err := validateReversal(&tc.entry)
		if !errors.Is(err, tc.expected) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, err)
		}
	}
}

func TestSnapshotOf_RoundTripsEntities(t *testing.T) {
	marker := "1"
	cycle := models.BillingCycle{
		ID:           7,
		TenantId:     "t-1",
		ScopeId:      "merchant-001",
		ScopeType:    models.ScopeTypeMerchant,
		CycleType:    models.CycleTypeMonthly,
		Status:       models.CycleStatusActive,
		ActiveMarker: &marker,
	}
	snap := snapshotOf(cycle)
	if snap == nil {
		t.Fatal("expected a snapshot, got nil")
	}
	if snap["tenant_id"] != "t-1" {
		t.Fatalf("expected tenant_id t-1, got %v", snap["tenant_id"])
	}
	if snap["scope_id"] != "merchant-001" {
		t.Fatalf("expected scope_id merchant-001, got %v", snap["scope_id"])
	}
	if snap["status"] != "active" {
		t.Fatalf("expected status active, got %v", snap["status"])
	}
	// ActiveMarker is an internal column and must not leak into snapshots.
	if _, ok := snap["active_marker"]; ok {
		t.Fatal("expected active marker to stay out of the snapshot")
	}
}

func TestSnapshotOf_KeepsDecimalPrecision(t *testing.T) {
	item := models.BillingItem{
		ID:          1,
		TenantId:    "t-1",
		ItemType:    "api_calls",
		Quantity:    decimal.RequireFromString("10000"),
		UnitPrice:   decimal.RequireFromString("0.4500"),
		TotalAmount: decimal.RequireFromString("4500.0000"),
		Currency:    "NGN",
	}
	snap := snapshotOf(item)
	if snap["unit_price"] != "0.4500" {
		t.Fatalf("expected unit_price 0.4500 in snapshot, got %v", snap["unit_price"])
	}
	if snap["total_amount"] != "4500.0000" {
		t.Fatalf("expected total_amount 4500.0000 in snapshot, got %v", snap["total_amount"])
	}
}
