package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rule(id, priority int, name string, conditions models.RuleConditions, actions models.RuleActions) models.PricingRule {
	return models.PricingRule{
		ID:         id,
		Name:       name,
		Priority:   priority,
		Conditions: conditions,
		Actions:    actions,
	}
}

func TestEvaluateRules_EmptyConditionsAlwaysFire(t *testing.T) {
	rules := []models.PricingRule{
		rule(1, 0, "blanket fee", nil, models.RuleActions{
			{Type: models.ActionAddFee, Value: dec("25"), Unit: models.UnitFixed},
		}),
	}
	adjustments, applied, final := evaluateRules(rules, nil, dec("100"))
	if len(applied) != 1 || applied[0] != 1 {
		t.Fatalf("expected rule 1 to fire, got %v", applied)
	}
	if len(adjustments) != 1 || adjustments[0].Amount.String() != "25" {
		t.Fatalf("expected one +25 adjustment, got %+v", adjustments)
	}
	if final.String() != "125" {
		t.Fatalf("expected final 125, got %s", final)
	}
}

func TestEvaluateRules_MissingFieldFails(t *testing.T) {
	rules := []models.PricingRule{
		rule(1, 0, "needs region", models.RuleConditions{
			{Field: "region", Operator: models.OperatorEq, Value: "eu-west"},
		}, models.RuleActions{
			{Type: models.ActionAddFee, Value: dec("10"), Unit: models.UnitFixed},
		}),
	}
	_, applied, final := evaluateRules(rules, map[string]any{}, dec("100"))
	if len(applied) != 0 {
		t.Fatalf("expected no rules to fire, got %v", applied)
	}
	if final.String() != "100" {
		t.Fatalf("expected final 100, got %s", final)
	}
}

func TestEvaluateRules_PercentDiscountOnCurrentPrice(t *testing.T) {
	// Two 10% discounts cascade: the second sees the already-discounted price.
	rules := []models.PricingRule{
		rule(1, 10, "first discount", nil, models.RuleActions{
			{Type: models.ActionApplyDiscount, Value: dec("10"), Unit: models.UnitPercentage},
		}),
		rule(2, 5, "second discount", nil, models.RuleActions{
			{Type: models.ActionApplyDiscount, Value: dec("10"), Unit: models.UnitPercentage},
		}),
	}
	adjustments, _, final := evaluateRules(rules, nil, dec("1000"))
	if adjustments[0].Amount.String() != "-100" {
		t.Fatalf("first adjustment expected -100, got %s", adjustments[0].Amount)
	}
	if adjustments[1].Amount.String() != "-90" {
		t.Fatalf("second adjustment expected -90 (10%% of 900), got %s", adjustments[1].Amount)
	}
	if final.String() != "810" {
		t.Fatalf("expected final 810, got %s", final)
	}
}

func TestEvaluateRules_PriceFieldSeesCumulativePrice(t *testing.T) {
	// The second rule conditions on the synthetic price field updated by the
	// first rule's set_price.
	rules := []models.PricingRule{
		rule(1, 10, "set to 40", nil, models.RuleActions{
			{Type: models.ActionSetPrice, Value: dec("40")},
		}),
		rule(2, 5, "small order fee", models.RuleConditions{
			{Field: "price", Operator: models.OperatorLt, Value: 50},
		}, models.RuleActions{
			{Type: models.ActionAddFee, Value: dec("5"), Unit: models.UnitFixed},
		}),
	}
	_, applied, final := evaluateRules(rules, nil, dec("1000"))
	if len(applied) != 2 {
		t.Fatalf("expected both rules to fire, got %v", applied)
	}
	if final.String() != "45" {
		t.Fatalf("expected final 45, got %s", final)
	}
}

func TestEvaluateRules_SkipActionChangesNothing(t *testing.T) {
	rules := []models.PricingRule{
		rule(1, 0, "skip", nil, models.RuleActions{
			{Type: models.ActionSkip},
		}),
	}
	adjustments, applied, final := evaluateRules(rules, nil, dec("100"))
	if len(applied) != 1 {
		t.Fatalf("expected the rule to count as applied, got %v", applied)
	}
	if len(adjustments) != 0 {
		t.Fatalf("expected no adjustments for skip, got %+v", adjustments)
	}
	if final.String() != "100" {
		t.Fatalf("expected final 100, got %s", final)
	}
}

func TestActionDelta_Multiplier(t *testing.T) {
	delta := actionDelta(models.RuleAction{
		Type:  models.ActionApplyMultiplier,
		Value: dec("1.5"),
	}, dec("200"))
	if delta.String() != "100" {
		t.Fatalf("expected +100 for 1.5x of 200, got %s", delta)
	}
}

func TestActionDelta_FixedSurcharge(t *testing.T) {
	delta := actionDelta(models.RuleAction{
		Type:  models.ActionApplySurcharge,
		Value: dec("7.50"),
		Unit:  models.UnitFixed,
	}, dec("200"))
	if delta.String() != "7.5" {
		t.Fatalf("expected +7.5, got %s", delta)
	}
}

func TestConditionHolds_Operators(t *testing.T) {
	evalCtx := map[string]any{
		"quantity": float64(150),
		"region":   "eu-west",
		"tags":     []any{"vip", "beta"},
		"channel":  "pos",
	}

	cases := []struct {
		name     string
		cond     models.RuleCondition
		expected bool
	}{
		{"eq numeric across types", models.RuleCondition{Field: "quantity", Operator: models.OperatorEq, Value: 150}, true},
		{"neq", models.RuleCondition{Field: "region", Operator: models.OperatorNeq, Value: "us-east"}, true},
		{"gt", models.RuleCondition{Field: "quantity", Operator: models.OperatorGt, Value: 100}, true},
		{"gt false on equal", models.RuleCondition{Field: "quantity", Operator: models.OperatorGt, Value: 150}, false},
		{"gte on equal", models.RuleCondition{Field: "quantity", Operator: models.OperatorGte, Value: 150}, true},
		{"lt", models.RuleCondition{Field: "quantity", Operator: models.OperatorLt, Value: 200}, true},
		{"lte", models.RuleCondition{Field: "quantity", Operator: models.OperatorLte, Value: 150}, true},
		{"in", models.RuleCondition{Field: "region", Operator: models.OperatorIn, Value: []any{"eu-west", "us-east"}}, true},
		{"in string slice", models.RuleCondition{Field: "region", Operator: models.OperatorIn, Value: []string{"eu-west"}}, true},
		{"not_in", models.RuleCondition{Field: "region", Operator: models.OperatorNotIn, Value: []any{"us-east"}}, true},
		{"not_in hit", models.RuleCondition{Field: "region", Operator: models.OperatorNotIn, Value: []any{"eu-west"}}, false},
		{"contains substring", models.RuleCondition{Field: "region", Operator: models.OperatorContains, Value: "west"}, true},
		{"contains list member", models.RuleCondition{Field: "tags", Operator: models.OperatorContains, Value: "vip"}, true},
		{"between inclusive low", models.RuleCondition{Field: "quantity", Operator: models.OperatorBetween, Value: []any{150, 200}}, true},
		{"between inclusive high", models.RuleCondition{Field: "quantity", Operator: models.OperatorBetween, Value: []any{100, 150}}, true},
		{"between outside", models.RuleCondition{Field: "quantity", Operator: models.OperatorBetween, Value: []any{151, 200}}, false},
		{"between malformed", models.RuleCondition{Field: "quantity", Operator: models.OperatorBetween, Value: []any{100}}, false},
		{"numeric op on string fails closed", models.RuleCondition{Field: "channel", Operator: models.OperatorGt, Value: 1}, false},
	}
	for _, tc := range cases {
		if got := conditionHolds(tc.cond, evalCtx); got != tc.expected {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestValuesEqual_NumericAcrossRepresentations(t *testing.T) {
	if !valuesEqual(float64(10), "10.0") {
		t.Fatal("expected 10 == 10.0 across representations")
	}
	if !valuesEqual("abc", "abc") {
		t.Fatal("expected string equality")
	}
	if valuesEqual("abc", "abd") {
		t.Fatal("expected string inequality")
	}
}
