package models

import (
	"testing"
	"time"
)

func TestCycleEndDate_CalendarTypes(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		cycleType BillingCycleType
		expected  time.Time
	}{
		{CycleTypeDaily, time.Date(2026, 1, 1, 23, 59, 59, 999000000, time.UTC)},
		{CycleTypeWeekly, time.Date(2026, 1, 7, 23, 59, 59, 999000000, time.UTC)},
		{CycleTypeMonthly, time.Date(2026, 1, 31, 23, 59, 59, 999000000, time.UTC)},
		{CycleTypeQuarterly, time.Date(2026, 3, 31, 23, 59, 59, 999000000, time.UTC)},
		{CycleTypeYearly, time.Date(2026, 12, 31, 23, 59, 59, 999000000, time.UTC)},
	}
	for _, tc := range cases {
		got, err := CycleEndDate(tc.cycleType, start)
		if err != nil {
			t.Fatalf("CycleEndDate(%s) error: %v", tc.cycleType, err)
		}
		if !got.Equal(tc.expected) {
			t.Fatalf("CycleEndDate(%s) expected %s, got %s", tc.cycleType, tc.expected, got)
		}
	}
}

func TestCycleEndDate_AnchorsAtStartOfDay(t *testing.T) {
	// A mid-day start still ends at the last millisecond of the period.
	start := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	got, err := CycleEndDate(CycleTypeMonthly, start)
	if err != nil {
		t.Fatalf("CycleEndDate error: %v", err)
	}
	expected := time.Date(2026, 3, 9, 23, 59, 59, 999000000, time.UTC)
	if !got.Equal(expected) {
		t.Fatalf("expected %s, got %s", expected, got)
	}
}

func TestCycleEndDate_MonthEndOverflow(t *testing.T) {
	// AddDate normalizes Jan 31 + 1 month to Mar 2/3; the end lands one
	// millisecond before that normalized instant.
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	got, err := CycleEndDate(CycleTypeMonthly, start)
	if err != nil {
		t.Fatalf("CycleEndDate error: %v", err)
	}
	expected := time.Date(2026, 3, 2, 23, 59, 59, 999000000, time.UTC)
	if !got.Equal(expected) {
		t.Fatalf("expected %s, got %s", expected, got)
	}
}

func TestCycleEndDate_CustomRequiresExplicitEnd(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := CycleEndDate(CycleTypeCustom, start); err == nil {
		t.Fatal("expected error for custom cycle without explicit end date")
	}
}

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    BillingCycleStatus
		to      BillingCycleStatus
		allowed bool
	}{
		{CycleStatusActive, CycleStatusClosed, true},
		{CycleStatusActive, CycleStatusCancelled, true},
		{CycleStatusActive, CycleStatusInvoiced, false},
		{CycleStatusActive, CycleStatusPaid, false},
		{CycleStatusClosed, CycleStatusInvoiced, true},
		{CycleStatusClosed, CycleStatusActive, false},
		{CycleStatusInvoiced, CycleStatusPaid, true},
		{CycleStatusInvoiced, CycleStatusOverdue, true},
		{CycleStatusOverdue, CycleStatusPaid, true},
		{CycleStatusOverdue, CycleStatusInvoiced, false},
		{CycleStatusPaid, CycleStatusActive, false},
		{CycleStatusPaid, CycleStatusCancelled, false},
		{CycleStatusCancelled, CycleStatusActive, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s expected allowed=%v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}
