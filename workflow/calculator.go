package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PricingCalculator computes a fully broken-down price: resolve model, layer
// approved overrides, compute the base price per model type, then run the
// rule engine.
type PricingCalculator struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	Resolver  *ScopeResolver
	Overrides *OverrideManager
}

func NewPricingCalculator(db *gorm.DB, logger *logrus.Logger, resolver *ScopeResolver, overrides *OverrideManager) *PricingCalculator {
	return &PricingCalculator{DB: db, Logger: logger, Resolver: resolver, Overrides: overrides}
}

type CalculateRequest struct {
	PricingModelId *int              `json:"pricing_model_id"`
	ScopeType      models.ScopeType  `json:"scope_type" binding:"required"`
	ScopeId        *string           `json:"scope_id"`
	DeploymentType *string           `json:"deployment_type"`
	ItemType       string            `json:"item_type" binding:"required"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Metadata       map[string]any    `json:"metadata"`
	// EvaluatedAt pins every time-window check of one evaluation to a single
	// instant so repeated evaluations of the same logical request reproduce
	// the same answer. Zero means "now".
	EvaluatedAt    *time.Time        `json:"evaluated_at"`
}

type BreakdownEntry struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

type PriceResult struct {
	PricingModelId   int               `json:"pricing_model_id"`
	BasePrice        decimal.Decimal   `json:"base_price"`
	Adjustments      []PriceAdjustment `json:"adjustments"`
	FinalPrice       decimal.Decimal   `json:"final_price"`
	Currency         string            `json:"currency"`
	Breakdown        []BreakdownEntry  `json:"breakdown"`
	AppliedRules     []int             `json:"applied_rules"`
	AppliedOverrides []int             `json:"applied_overrides"`
	EvaluatedAt      time.Time         `json:"evaluated_at"`
}

func (c *PricingCalculator) CalculatePrice(ctx context.Context, tenantId string, req CalculateRequest) (*PriceResult, error) {
	if tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	evaluatedAt := time.Now().UTC()
	if req.EvaluatedAt != nil && !req.EvaluatedAt.IsZero() {
		evaluatedAt = req.EvaluatedAt.UTC()
	}

	modelId := 0
	if req.PricingModelId != nil {
		modelId = *req.PricingModelId
	} else {
		resolved, err := c.Resolver.ResolvePricingModel(ctx, tenantId, ResolveRequest{
			ScopeType:      req.ScopeType,
			ScopeId:        req.ScopeId,
			DeploymentType: req.DeploymentType,
			EvaluatedAt:    req.EvaluatedAt,
		})
		if err != nil {
			return nil, err
		}
		modelId = resolved
	}

	model, err := models.GetPricingModel(ctx, tenantId, modelId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("pricing model %d: %w", modelId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	if model.IsActive == nil || !*model.IsActive {
		return nil, fmt.Errorf("pricing model %d: %w", modelId, ErrPricingModelInactive)
	}

	overrides, err := c.Overrides.GetActiveOverrides(ctx, tenantId, modelId, req.ScopeType, req.ScopeId, evaluatedAt)
	if err != nil {
		return nil, err
	}
	mergedConfig, appliedOverrides := mergeOverrides(model.Config, overrides)

	basePrice, breakdown, err := computeComponentPrice(model.ModelType, mergedConfig, req.Quantity)
	if err != nil {
		return nil, err
	}

	rules, err := models.GetActiveRules(ctx, tenantId, modelId, evaluatedAt)
	if err != nil {
		return nil, err
	}
	adjustments, appliedRules, cumulative := evaluateRules(rules, req.Metadata, basePrice)

	finalPrice := cumulative
	if config.ClampFinalPrice() {
		finalPrice = mergedConfig.ClampToBounds(finalPrice)
	}
	// Silent arithmetic guard: never return a negative price.
	if finalPrice.IsNegative() {
		finalPrice = decimal.Zero
	}

	return &PriceResult{
		PricingModelId:   modelId,
		BasePrice:        basePrice,
		Adjustments:      adjustments,
		FinalPrice:       finalPrice,
		Currency:         mergedConfig.CurrencyOrDefault(),
		Breakdown:        breakdown,
		AppliedRules:     appliedRules,
		AppliedOverrides: appliedOverrides,
		EvaluatedAt:      evaluatedAt,
	}, nil
}

// mergeOverrides layers override patches onto the model config. The list
// arrives most-recent-first; merging walks it backwards so the newest
// override's fields win (most-recent-wins precedence).
func mergeOverrides(base models.PricingConfig, overrides []models.PricingOverride) (models.PricingConfig, []int) {
	merged := base
	applied := make([]int, 0, len(overrides))
	for i := len(overrides) - 1; i >= 0; i-- {
		merged = merged.ApplyPatch(overrides[i].OverrideValue)
	}
	for _, o := range overrides {
		applied = append(applied, o.ID)
	}
	return merged, applied
}

// computeComponentPrice computes the base price for one model type against
// its (merged) config and clamps it into the config's charge bounds. The
// clamp applies to the base stage only; rule adjustments run afterwards.
func computeComponentPrice(modelType models.PricingModelType, cfg models.PricingConfig, quantity decimal.Decimal) (decimal.Decimal, []BreakdownEntry, error) {
	price, breakdown, err := computeBasePrice(modelType, cfg, quantity)
	if err != nil {
		return decimal.Zero, nil, err
	}
	clamped := cfg.ClampToBounds(price)
	if !clamped.Equal(price) {
		breakdown = append(breakdown, BreakdownEntry{
			Label:  "charge bounds adjustment",
			Amount: clamped.Sub(price),
		})
	}
	return clamped, breakdown, nil
}

func computeBasePrice(modelType models.PricingModelType, cfg models.PricingConfig, quantity decimal.Decimal) (decimal.Decimal, []BreakdownEntry, error) {
	switch modelType {
	case models.ModelTypeFlat:
		price := configBasePrice(cfg).Mul(quantity)
		return price, []BreakdownEntry{{
			Label:  fmt.Sprintf("flat: %s x %s", configBasePrice(cfg), quantity),
			Amount: price,
		}}, nil

	case models.ModelTypeUsageBased:
		metric := "usage"
		if cfg.UsageMetric != nil && *cfg.UsageMetric != "" {
			metric = *cfg.UsageMetric
		}
		price := configBasePrice(cfg).Mul(quantity)
		return price, []BreakdownEntry{{
			Label:  fmt.Sprintf("%s: %s x %s", metric, configBasePrice(cfg), quantity),
			Amount: price,
		}}, nil

	case models.ModelTypeTiered:
		return computeTieredPrice(cfg.Tiers, quantity)

	case models.ModelTypeSubscription:
		// One fixed charge per period; quantity is ignored.
		price := configBasePrice(cfg)
		period := "period"
		if cfg.SubscriptionPeriod != nil && *cfg.SubscriptionPeriod != "" {
			period = *cfg.SubscriptionPeriod
		}
		return price, []BreakdownEntry{{
			Label:  fmt.Sprintf("subscription (%s)", period),
			Amount: price,
		}}, nil

	case models.ModelTypeRevenueShare:
		// Quantity carries the revenue amount.
		percent := decimal.Zero
		if cfg.RevenueSharePercent != nil {
			percent = *cfg.RevenueSharePercent
		}
		price := quantity.Mul(percent).Div(decimal.NewFromInt(100))
		return price, []BreakdownEntry{{
			Label:  fmt.Sprintf("revenue share: %s%% of %s", percent, quantity),
			Amount: price,
		}}, nil

	case models.ModelTypeHybrid:
		return computeHybridPrice(cfg.Components, quantity)

	default:
		return decimal.Zero, nil, fmt.Errorf("%w: %q", ErrUnknownModelType, modelType)
	}
}

// computeTieredPrice walks tiers in ascending tier_min order, consuming
// min(remaining, tierMax - tierMin + 1) units at each tier's unit price plus
// an optional flat fee per tier touched, until quantity is exhausted.
// Stored tier order is not trusted; the walk sorts a copy first.
func computeTieredPrice(tiers []models.PricingTier, quantity decimal.Decimal) (decimal.Decimal, []BreakdownEntry, error) {
	ordered := make([]models.PricingTier, len(tiers))
	copy(ordered, tiers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TierMin.LessThan(ordered[j].TierMin)
	})

	one := decimal.NewFromInt(1)
	total := decimal.Zero
	breakdown := []BreakdownEntry{}
	remaining := quantity

	for _, tier := range ordered {
		if !remaining.IsPositive() {
			break
		}
		consumed := remaining
		if tier.TierMax != nil {
			capacity := tier.TierMax.Sub(tier.TierMin).Add(one)
			if capacity.LessThan(consumed) {
				consumed = capacity
			}
		}
		if !consumed.IsPositive() {
			continue
		}
		tierAmount := consumed.Mul(tier.UnitPrice)
		if tier.FlatFee != nil {
			tierAmount = tierAmount.Add(*tier.FlatFee)
		}
		total = total.Add(tierAmount)
		remaining = remaining.Sub(consumed)

		upper := "open-ended"
		if tier.TierMax != nil {
			upper = tier.TierMax.String()
		}
		breakdown = append(breakdown, BreakdownEntry{
			Label:  fmt.Sprintf("tier %s-%s: %s x %s", tier.TierMin, upper, consumed, tier.UnitPrice),
			Amount: tierAmount,
		})
	}
	return total, breakdown, nil
}

// computeHybridPrice sums the weighted prices of the declared sub-components,
// each computed by the same per-type procedure (including its own bounds
// clamp). Nesting is single-level: a component may not itself be hybrid.
func computeHybridPrice(components []models.HybridComponent, quantity decimal.Decimal) (decimal.Decimal, []BreakdownEntry, error) {
	total := decimal.Zero
	breakdown := []BreakdownEntry{}

	for _, component := range components {
		if component.ModelType == models.ModelTypeHybrid {
			return decimal.Zero, nil, ErrHybridComponentNested
		}
		subPrice, subBreakdown, err := computeComponentPrice(component.ModelType, component.Config, quantity)
		if err != nil {
			return decimal.Zero, nil, err
		}
		weight := decimal.NewFromInt(1)
		if component.Weight != nil {
			weight = *component.Weight
		}
		weighted := subPrice.Mul(weight)
		total = total.Add(weighted)

		for _, entry := range subBreakdown {
			breakdown = append(breakdown, BreakdownEntry{
				Label:  fmt.Sprintf("%s: %s", component.ModelType, entry.Label),
				Amount: entry.Amount.Mul(weight),
			})
		}
	}
	return total, breakdown, nil
}

func configBasePrice(cfg models.PricingConfig) decimal.Decimal {
	if cfg.BasePrice == nil {
		return decimal.Zero
	}
	return *cfg.BasePrice
}
