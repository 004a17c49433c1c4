package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"github.com/shopspring/decimal"
)

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strp(s string) *string { return &s }

func TestComputeBasePrice_Flat(t *testing.T) {
	cfg := models.PricingConfig{BasePrice: decp("25")}
	price, breakdown, err := computeBasePrice(models.ModelTypeFlat, cfg, dec("4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "100" {
		t.Fatalf("expected 100, got %s", price)
	}
	if len(breakdown) != 1 {
		t.Fatalf("expected one breakdown entry, got %d", len(breakdown))
	}
}

func TestComputeBasePrice_FlatZeroQuantity(t *testing.T) {
	cfg := models.PricingConfig{BasePrice: decp("25")}
	price, _, err := computeBasePrice(models.ModelTypeFlat, cfg, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.IsZero() {
		t.Fatalf("expected zero price for zero quantity, got %s", price)
	}
}

func TestComputeBasePrice_SubscriptionIgnoresQuantity(t *testing.T) {
	cfg := models.PricingConfig{BasePrice: decp("15000"), SubscriptionPeriod: strp("monthly")}
	for _, qty := range []string{"0", "1", "999"} {
		price, _, err := computeBasePrice(models.ModelTypeSubscription, cfg, dec(qty))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if price.String() != "15000" {
			t.Fatalf("qty=%s: expected 15000, got %s", qty, price)
		}
	}
}

func TestComputeBasePrice_RevenueShare(t *testing.T) {
	cfg := models.PricingConfig{RevenueSharePercent: decp("15")}
	price, _, err := computeBasePrice(models.ModelTypeRevenueShare, cfg, dec("10000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "1500" {
		t.Fatalf("expected 1500, got %s", price)
	}
}

func TestComputeBasePrice_UnknownType(t *testing.T) {
	_, _, err := computeBasePrice(models.PricingModelType("mystery"), models.PricingConfig{}, dec("1"))
	if !errors.Is(err, ErrUnknownModelType) {
		t.Fatalf("expected ErrUnknownModelType, got %v", err)
	}
}

func TestComputeTieredPrice_SpansTiers(t *testing.T) {
	tiers := []models.PricingTier{
		{TierMin: dec("1"), TierMax: decp("10"), UnitPrice: dec("100")},
		{TierMin: dec("11"), TierMax: decp("50"), UnitPrice: dec("80")},
		{TierMin: dec("51"), UnitPrice: dec("60")},
	}
	// 15 units: 10 at 100 + 5 at 80 = 1400.
	price, breakdown, err := computeTieredPrice(tiers, dec("15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "1400" {
		t.Fatalf("expected 1400, got %s", price)
	}
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 breakdown entries, got %d", len(breakdown))
	}
}

func TestComputeTieredPrice_UnorderedTiers(t *testing.T) {
	// Stored out of order: the walk must still consume cheapest-range-first
	// by tier_min, not in array order.
	tiers := []models.PricingTier{
		{TierMin: dec("11"), TierMax: decp("50"), UnitPrice: dec("80")},
		{TierMin: dec("1"), TierMax: decp("10"), UnitPrice: dec("100")},
	}
	price, breakdown, err := computeTieredPrice(tiers, dec("15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 10 at 100 + 5 at 80 = 1400, not 15 at 80 = 1200.
	if price.String() != "1400" {
		t.Fatalf("expected 1400, got %s", price)
	}
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 breakdown entries, got %d", len(breakdown))
	}
	if breakdown[0].Label != "tier 1-10: 10 x 100" {
		t.Fatalf("expected the lowest tier first in the breakdown, got %q", breakdown[0].Label)
	}
	// The caller's slice stays as stored.
	if tiers[0].TierMin.String() != "11" {
		t.Fatalf("expected the input slice untouched, got tier_min %s first", tiers[0].TierMin)
	}
}

func TestComputeTieredPrice_OpenEndedTail(t *testing.T) {
	tiers := []models.PricingTier{
		{TierMin: dec("1"), TierMax: decp("10"), UnitPrice: dec("100")},
		{TierMin: dec("11"), UnitPrice: dec("80")},
	}
	// 100 units: 10 at 100 + 90 at 80 = 8200.
	price, _, err := computeTieredPrice(tiers, dec("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "8200" {
		t.Fatalf("expected 8200, got %s", price)
	}
}

func TestComputeTieredPrice_FlatFeePerTierTouched(t *testing.T) {
	tiers := []models.PricingTier{
		{TierMin: dec("1"), TierMax: decp("10"), UnitPrice: dec("10"), FlatFee: decp("5")},
		{TierMin: dec("11"), UnitPrice: dec("8"), FlatFee: decp("3")},
	}
	// 12 units: (10*10 + 5) + (2*8 + 3) = 105 + 19 = 124.
	price, _, err := computeTieredPrice(tiers, dec("12"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "124" {
		t.Fatalf("expected 124, got %s", price)
	}
	// 5 units stay inside the first tier: second tier's flat fee is not charged.
	price, _, err = computeTieredPrice(tiers, dec("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "55" {
		t.Fatalf("expected 55, got %s", price)
	}
}

func TestComputeComponentPrice_ClampsIntoBounds(t *testing.T) {
	cfg := models.PricingConfig{
		BasePrice:     decp("0.50"),
		MinimumCharge: decp("100"),
	}
	// 20 * 0.50 = 10, clamped up to the 100 minimum.
	price, breakdown, err := computeComponentPrice(models.ModelTypeUsageBased, cfg, dec("20"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "100" {
		t.Fatalf("expected minimum charge 100, got %s", price)
	}
	last := breakdown[len(breakdown)-1]
	if last.Label != "charge bounds adjustment" {
		t.Fatalf("expected a bounds adjustment entry, got %q", last.Label)
	}
	if last.Amount.String() != "90" {
		t.Fatalf("expected +90 adjustment, got %s", last.Amount)
	}
}

func TestComputeComponentPrice_ExactBoundNoAdjustmentEntry(t *testing.T) {
	cfg := models.PricingConfig{
		BasePrice:     decp("10"),
		MaximumCharge: decp("100"),
	}
	price, breakdown, err := computeComponentPrice(models.ModelTypeFlat, cfg, dec("10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "100" {
		t.Fatalf("expected 100, got %s", price)
	}
	for _, entry := range breakdown {
		if entry.Label == "charge bounds adjustment" {
			t.Fatal("expected no bounds adjustment entry when the price sits exactly on the bound")
		}
	}
}

func TestComputeHybridPrice_WeightedComponents(t *testing.T) {
	components := []models.HybridComponent{
		{
			ModelType: models.ModelTypeSubscription,
			Config:    models.PricingConfig{BasePrice: decp("5000")},
		},
		{
			ModelType: models.ModelTypeUsageBased,
			Config:    models.PricingConfig{BasePrice: decp("2")},
			Weight:    decp("0.5"),
		},
	}
	// 5000*1 + (100*2)*0.5 = 5100.
	price, breakdown, err := computeHybridPrice(components, dec("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price.String() != "5100" {
		t.Fatalf("expected 5100, got %s", price)
	}
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 breakdown entries, got %d", len(breakdown))
	}
}

func TestComputeHybridPrice_RejectsNestedHybrid(t *testing.T) {
	components := []models.HybridComponent{
		{ModelType: models.ModelTypeHybrid},
	}
	_, _, err := computeHybridPrice(components, dec("1"))
	if !errors.Is(err, ErrHybridComponentNested) {
		t.Fatalf("expected ErrHybridComponentNested, got %v", err)
	}
}

func TestMergeOverrides_MostRecentWins(t *testing.T) {
	base := models.PricingConfig{
		BasePrice:     decp("100"),
		MinimumCharge: decp("10"),
	}
	// GetActiveOverrides returns most-recent-first.
	overrides := []models.PricingOverride{
		{ID: 9, OverrideValue: models.PricingConfig{BasePrice: decp("70")}},
		{ID: 4, OverrideValue: models.PricingConfig{BasePrice: decp("80"), MaximumCharge: decp("500")}},
	}
	merged, applied := mergeOverrides(base, overrides)
	if merged.BasePrice.String() != "70" {
		t.Fatalf("expected newest override's base price 70, got %s", merged.BasePrice)
	}
	if merged.MaximumCharge == nil || merged.MaximumCharge.String() != "500" {
		t.Fatal("expected the older override's untouched field to survive")
	}
	if merged.MinimumCharge.String() != "10" {
		t.Fatalf("expected base minimum charge to survive, got %s", merged.MinimumCharge)
	}
	if len(applied) != 2 || applied[0] != 9 || applied[1] != 4 {
		t.Fatalf("expected applied ids [9 4], got %v", applied)
	}
}

func TestMergeOverrides_NoOverridesIsIdentity(t *testing.T) {
	base := models.PricingConfig{BasePrice: decp("100")}
	merged, applied := mergeOverrides(base, nil)
	if merged.BasePrice.String() != "100" {
		t.Fatalf("expected base config unchanged, got %s", merged.BasePrice)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no applied overrides, got %v", applied)
	}
}

func TestOverrideUsable_Window(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	approved := "approver"

	cases := []struct {
		name     string
		override models.PricingOverride
		expected bool
	}{
		{"approved active in window", models.PricingOverride{ApprovedBy: &approved, IsActive: boolp(true), EffectiveFrom: &past, EffectiveTo: &future}, true},
		{"unapproved", models.PricingOverride{IsActive: boolp(true), EffectiveFrom: &past}, false},
		{"inactive", models.PricingOverride{ApprovedBy: &approved, IsActive: boolp(false), EffectiveFrom: &past}, false},
		{"not yet effective", models.PricingOverride{ApprovedBy: &approved, IsActive: boolp(true), EffectiveFrom: &future}, false},
		{"expired", models.PricingOverride{ApprovedBy: &approved, IsActive: boolp(true), EffectiveFrom: &past, EffectiveTo: &past}, false},
		{"open-ended window", models.PricingOverride{ApprovedBy: &approved, IsActive: boolp(true)}, true},
	}
	for _, tc := range cases {
		if got := tc.override.Usable(now); got != tc.expected {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func boolp(b bool) *bool { return &b }
