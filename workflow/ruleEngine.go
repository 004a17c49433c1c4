package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/pricing_backend/models"
	"github.com/shopspring/decimal"
)

// The rule engine is deliberately DB-free: the calculator loads the rule set
// and hands it in together with an evaluation context assembled from request
// metadata plus the synthetic "price" field holding the cumulative price so
// far. Rules therefore see the effects of higher-priority rules.

// PriceAdjustment is one applied rule action, expressed as a signed delta
// against the price that was current when the action ran.
type PriceAdjustment struct {
	RuleId     int                   `json:"rule_id"`
	RuleName   string                `json:"rule_name"`
	ActionType models.RuleActionType `json:"action_type"`
	Amount     decimal.Decimal       `json:"amount"`
	Reason     string                `json:"reason,omitempty"`
}

// evaluateRules runs the (already priority-sorted) rules against basePrice
// and returns the adjustments, the ids of rules that fired, and the resulting
// cumulative price before the final zero floor.
func evaluateRules(rules []models.PricingRule, metadata map[string]any, basePrice decimal.Decimal) ([]PriceAdjustment, []int, decimal.Decimal) {
	adjustments := []PriceAdjustment{}
	appliedRules := []int{}
	current := basePrice

	evalCtx := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		evalCtx[k] = v
	}

	for _, rule := range rules {
		evalCtx["price"] = current
		if !conditionsHold(rule.Conditions, evalCtx) {
			continue
		}
		appliedRules = append(appliedRules, rule.ID)
		for _, action := range rule.Actions {
			if action.Type == models.ActionSkip {
				continue
			}
			delta := actionDelta(action, current)
			current = current.Add(delta)
			adjustments = append(adjustments, PriceAdjustment{
				RuleId:     rule.ID,
				RuleName:   rule.Name,
				ActionType: action.Type,
				Amount:     delta,
				Reason:     action.Reason,
			})
		}
	}
	return adjustments, appliedRules, current
}

// actionDelta computes the incremental change an action makes relative to the
// current cumulative price.
func actionDelta(action models.RuleAction, current decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	switch action.Type {
	case models.ActionApplyDiscount:
		if action.Unit == models.UnitPercentage {
			return current.Mul(action.Value).Div(hundred).Neg()
		}
		return action.Value.Neg()
	case models.ActionApplySurcharge, models.ActionAddFee:
		if action.Unit == models.UnitPercentage {
			return current.Mul(action.Value).Div(hundred)
		}
		return action.Value
	case models.ActionSetPrice:
		return action.Value.Sub(current)
	case models.ActionApplyMultiplier:
		return current.Mul(action.Value.Sub(decimal.NewFromInt(1)))
	default:
		return decimal.Zero
	}
}

// conditionsHold is conjunctive: every condition must pass for a rule to fire.
// A rule with no conditions always fires.
func conditionsHold(conditions models.RuleConditions, evalCtx map[string]any) bool {
	for _, cond := range conditions {
		if !conditionHolds(cond, evalCtx) {
			return false
		}
	}
	return true
}

func conditionHolds(cond models.RuleCondition, evalCtx map[string]any) bool {
	fieldVal, ok := evalCtx[cond.Field]
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OperatorEq:
		return valuesEqual(fieldVal, cond.Value)
	case models.OperatorNeq:
		return !valuesEqual(fieldVal, cond.Value)
	case models.OperatorGt, models.OperatorGte, models.OperatorLt, models.OperatorLte:
		left, lok := toDecimal(fieldVal)
		right, rok := toDecimal(cond.Value)
		if !lok || !rok {
			return false
		}
		switch cond.Operator {
		case models.OperatorGt:
			return left.GreaterThan(right)
		case models.OperatorGte:
			return left.GreaterThanOrEqual(right)
		case models.OperatorLt:
			return left.LessThan(right)
		default:
			return left.LessThanOrEqual(right)
		}
	case models.OperatorIn:
		list, ok := toList(cond.Value)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if valuesEqual(fieldVal, candidate) {
				return true
			}
		}
		return false
	case models.OperatorNotIn:
		list, ok := toList(cond.Value)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if valuesEqual(fieldVal, candidate) {
				return false
			}
		}
		return true
	case models.OperatorContains:
		switch v := fieldVal.(type) {
		case string:
			return strings.Contains(v, fmt.Sprint(cond.Value))
		default:
			list, ok := toList(fieldVal)
			if !ok {
				return false
			}
			for _, item := range list {
				if valuesEqual(item, cond.Value) {
					return true
				}
			}
			return false
		}
	case models.OperatorBetween:
		// Inclusive on both ends, numeric only.
		bounds, ok := toList(cond.Value)
		if !ok || len(bounds) != 2 {
			return false
		}
		val, vok := toDecimal(fieldVal)
		lo, lok := toDecimal(bounds[0])
		hi, hok := toDecimal(bounds[1])
		if !vok || !lok || !hok {
			return false
		}
		return val.GreaterThanOrEqual(lo) && val.LessThanOrEqual(hi)
	default:
		return false
	}
}

// valuesEqual compares numerically when both sides are numeric, otherwise by
// string form, so json-decoded float64s match ints and decimals.
func valuesEqual(a, b any) bool {
	da, aok := toDecimal(a)
	db, bok := toDecimal(b)
	if aok && bok {
		return da.Equal(db)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(list))
		for i, f := range list {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
