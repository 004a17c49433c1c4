package models

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// PricingModelType is a closed set; computeBasePrice switches over it
// exhaustively and rejects anything else, so adding a type here forces the
// calculator to handle it.
type PricingModelType string

const (
	ModelTypeFlat         PricingModelType = "flat"
	ModelTypeUsageBased   PricingModelType = "usage_based"
	ModelTypeTiered       PricingModelType = "tiered"
	ModelTypeSubscription PricingModelType = "subscription"
	ModelTypeRevenueShare PricingModelType = "revenue_share"
	ModelTypeHybrid       PricingModelType = "hybrid"
)

func (t PricingModelType) IsValid() bool {
	switch t {
	case ModelTypeFlat, ModelTypeUsageBased, ModelTypeTiered,
		ModelTypeSubscription, ModelTypeRevenueShare, ModelTypeHybrid:
		return true
	}
	return false
}

// PricingTier is one band of a tiered model. TierMax nil means the band is
// unbounded. FlatFee is charged once per tier touched.
type PricingTier struct {
	TierMin   decimal.Decimal  `json:"tier_min"`
	TierMax   *decimal.Decimal `json:"tier_max,omitempty"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	FlatFee   *decimal.Decimal `json:"flat_fee,omitempty"`
}

// HybridComponent is one weighted sub-model of a hybrid config. Components
// may not themselves be hybrid (single-level nesting only).
type HybridComponent struct {
	ModelType PricingModelType `json:"model_type"`
	Config    PricingConfig    `json:"config"`
	Weight    *decimal.Decimal `json:"weight,omitempty"`
}

// PricingConfig is the model-type-specific configuration. All fields are
// optional so the same shape doubles as the partial patch carried by a
// pricing override: ApplyPatch replaces exactly the fields a patch sets.
type PricingConfig struct {
	BasePrice           *decimal.Decimal  `json:"base_price,omitempty"`
	Tiers               []PricingTier     `json:"tiers,omitempty"`
	MinimumCharge       *decimal.Decimal  `json:"minimum_charge,omitempty"`
	MaximumCharge       *decimal.Decimal  `json:"maximum_charge,omitempty"`
	UsageMetric         *string           `json:"usage_metric,omitempty"`
	SubscriptionPeriod  *string           `json:"subscription_period,omitempty"`
	RevenueSharePercent *decimal.Decimal  `json:"revenue_share_percent,omitempty"`
	Components          []HybridComponent `json:"components,omitempty"`
	Currency            *string           `json:"currency,omitempty"`
}

func (c PricingConfig) Value() (driver.Value, error) {
	return jsonColumnValue(c)
}

func (c *PricingConfig) Scan(src any) error {
	return jsonColumnScan(src, c)
}

// DefaultCurrency applies when neither model config nor override sets one.
const DefaultCurrency = "NGN"

func (c PricingConfig) CurrencyOrDefault() string {
	if c.Currency != nil && *c.Currency != "" {
		return *c.Currency
	}
	return DefaultCurrency
}

// ApplyPatch returns a copy of c with every field the patch sets replaced
// wholesale (shallow field replacement; tiers/components are swapped as whole
// lists, never merged element-wise).
func (c PricingConfig) ApplyPatch(patch PricingConfig) PricingConfig {
	merged := c
	if patch.BasePrice != nil {
		merged.BasePrice = patch.BasePrice
	}
	if patch.Tiers != nil {
		merged.Tiers = patch.Tiers
	}
	if patch.MinimumCharge != nil {
		merged.MinimumCharge = patch.MinimumCharge
	}
	if patch.MaximumCharge != nil {
		merged.MaximumCharge = patch.MaximumCharge
	}
	if patch.UsageMetric != nil {
		merged.UsageMetric = patch.UsageMetric
	}
	if patch.SubscriptionPeriod != nil {
		merged.SubscriptionPeriod = patch.SubscriptionPeriod
	}
	if patch.RevenueSharePercent != nil {
		merged.RevenueSharePercent = patch.RevenueSharePercent
	}
	if patch.Components != nil {
		merged.Components = patch.Components
	}
	if patch.Currency != nil {
		merged.Currency = patch.Currency
	}
	return merged
}

// ClampToBounds pins amount into [MinimumCharge, MaximumCharge] when those
// bounds are configured.
func (c PricingConfig) ClampToBounds(amount decimal.Decimal) decimal.Decimal {
	if c.MinimumCharge != nil && amount.LessThan(*c.MinimumCharge) {
		return *c.MinimumCharge
	}
	if c.MaximumCharge != nil && amount.GreaterThan(*c.MaximumCharge) {
		return *c.MaximumCharge
	}
	return amount
}
