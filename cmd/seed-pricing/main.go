// seed-pricing provisions a demo tenant with one pricing model per model
// type, their scope rows, a couple of rules on the usage model, and one open
// monthly billing cycle, so the API is exercisable right after startup.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-pricing
//
// SEED_TENANT_ID overrides the default tenant id.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"bitbucket.org/mmdatafocus/pricing_backend/utils"
	"bitbucket.org/mmdatafocus/pricing_backend/workflow"
	"github.com/shopspring/decimal"
)

const defaultTenantId = "demo-tenant"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func main() {
	tenantId := os.Getenv("SEED_TENANT_ID")
	if tenantId == "" {
		tenantId = defaultTenantId
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateAll(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrations failed: %v\n", err)
		os.Exit(1)
	}

	ctx := utils.SetTenantIdInContext(context.Background(), tenantId)
	ctx = utils.SetActorIdInContext(ctx, "seed")
	ctx = utils.SetActorRoleInContext(ctx, "system")

	var existing int64
	if err := db.WithContext(ctx).Model(&models.PricingModel{}).
		Where("tenant_id = ?", tenantId).Count(&existing).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to check existing models: %v\n", err)
		os.Exit(1)
	}
	if existing > 0 {
		fmt.Printf("tenant %q already has %d pricing models; nothing to do\n", tenantId, existing)
		return
	}

	ngn := strPtr("NGN")
	seedModels := []models.PricingModel{
		{
			TenantId:  tenantId,
			Name:      "Standard Transaction Fee",
			ModelType: models.ModelTypeFlat,
			Config: models.PricingConfig{
				BasePrice: decPtr("25"),
				Currency:  ngn,
			},
		},
		{
			TenantId:  tenantId,
			Name:      "API Call Metering",
			ModelType: models.ModelTypeUsageBased,
			Config: models.PricingConfig{
				BasePrice:     decPtr("0.50"),
				UsageMetric:   strPtr("api_calls"),
				MinimumCharge: decPtr("100"),
				Currency:      ngn,
			},
		},
		{
			TenantId:  tenantId,
			Name:      "Volume Transaction Tiers",
			ModelType: models.ModelTypeTiered,
			Config: models.PricingConfig{
				Tiers: []models.PricingTier{
					{TierMin: dec("1"), TierMax: decPtr("10"), UnitPrice: dec("100")},
					{TierMin: dec("11"), TierMax: decPtr("50"), UnitPrice: dec("80")},
					{TierMin: dec("51"), UnitPrice: dec("60")},
				},
				Currency: ngn,
			},
		},
		{
			TenantId:  tenantId,
			Name:      "Monthly Platform Subscription",
			ModelType: models.ModelTypeSubscription,
			Config: models.PricingConfig{
				BasePrice:          decPtr("15000"),
				SubscriptionPeriod: strPtr("monthly"),
				Currency:           ngn,
			},
		},
		{
			TenantId:  tenantId,
			Name:      "Settlement Revenue Share",
			ModelType: models.ModelTypeRevenueShare,
			Config: models.PricingConfig{
				RevenueSharePercent: decPtr("2.5"),
				Currency:            ngn,
			},
		},
		{
			TenantId:  tenantId,
			Name:      "Subscription Plus Usage Bundle",
			ModelType: models.ModelTypeHybrid,
			Config: models.PricingConfig{
				Components: []models.HybridComponent{
					{
						ModelType: models.ModelTypeSubscription,
						Config: models.PricingConfig{
							BasePrice:          decPtr("5000"),
							SubscriptionPeriod: strPtr("monthly"),
						},
					},
					{
						ModelType: models.ModelTypeUsageBased,
						Config: models.PricingConfig{
							BasePrice:   decPtr("0.25"),
							UsageMetric: strPtr("api_calls"),
						},
					},
				},
				Currency: ngn,
			},
		},
	}

	for i := range seedModels {
		utils.ErrorPanic(db.WithContext(ctx).Create(&seedModels[i]).Error)
	}

	// Scopes: the flat model is the global fallback; the tiered model targets
	// one demo merchant; the usage model targets cloud deployments.
	scopes := []models.PricingScope{
		{
			TenantId:       tenantId,
			PricingModelId: seedModels[0].ID,
			ScopeType:      models.ScopeTypeGlobal,
		},
		{
			TenantId:       tenantId,
			PricingModelId: seedModels[2].ID,
			ScopeType:      models.ScopeTypeMerchant,
			ScopeId:        strPtr("merchant-001"),
		},
		{
			TenantId:       tenantId,
			PricingModelId: seedModels[1].ID,
			ScopeType:      models.ScopeTypeDeployment,
			DeploymentType: strPtr("cloud"),
		},
		{
			TenantId:       tenantId,
			PricingModelId: seedModels[3].ID,
			ScopeType:      models.ScopeTypeSegment,
			ScopeId:        strPtr("enterprise"),
		},
	}
	for i := range scopes {
		utils.ErrorPanic(db.WithContext(ctx).Create(&scopes[i]).Error)
	}

	// Rules on the usage model: a volume discount plus a high-value surcharge.
	rules := []models.PricingRule{
		{
			TenantId:       tenantId,
			PricingModelId: seedModels[1].ID,
			Name:           "volume discount over 10k calls",
			Priority:       10,
			Conditions: models.RuleConditions{
				{Field: "quantity", Operator: models.OperatorGte, Value: 10000},
			},
			Actions: models.RuleActions{
				{Type: models.ActionApplyDiscount, Value: dec("10"), Unit: models.UnitPercentage, Reason: "volume discount"},
			},
		},
		{
			TenantId:       tenantId,
			PricingModelId: seedModels[1].ID,
			Name:           "premium region surcharge",
			Priority:       5,
			Conditions: models.RuleConditions{
				{Field: "region", Operator: models.OperatorIn, Value: []string{"eu-west", "us-east"}},
			},
			Actions: models.RuleActions{
				{Type: models.ActionApplySurcharge, Value: dec("5"), Unit: models.UnitPercentage, Reason: "premium region"},
			},
		},
	}
	for i := range rules {
		utils.ErrorPanic(db.WithContext(ctx).Create(&rules[i]).Error)
	}

	// One open monthly cycle for the demo merchant, starting this month.
	logger := config.GetLogger()
	audit := workflow.NewAuditTrail(db, logger)
	resolver := workflow.NewScopeResolver(db, logger)
	overrides := workflow.NewOverrideManager(db, logger, audit)
	calculator := workflow.NewPricingCalculator(db, logger, resolver, overrides)
	billing := workflow.NewBillingEngine(db, logger, calculator, audit, config.GetRedisLock())

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	cycle, err := billing.CreateBillingCycle(ctx, tenantId, workflow.CreateCycleInput{
		ScopeId:   "merchant-001",
		ScopeType: models.ScopeTypeMerchant,
		CycleType: models.CycleTypeMonthly,
		StartDate: monthStart,
	}, "seed", "system")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create billing cycle: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded tenant %q: %d models, %d scopes, %d rules, cycle #%d (%s to %s)\n",
		tenantId, len(seedModels), len(scopes), len(rules), cycle.ID,
		cycle.StartDate.Format(time.DateOnly), cycle.EndDate.Format(time.DateOnly))
}
