package models

import (
	"context"
	"database/sql/driver"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/config"
	"github.com/shopspring/decimal"
)

type ConditionOperator string

const (
	OperatorEq       ConditionOperator = "eq"
	OperatorNeq      ConditionOperator = "neq"
	OperatorGt       ConditionOperator = "gt"
	OperatorGte      ConditionOperator = "gte"
	OperatorLt       ConditionOperator = "lt"
	OperatorLte      ConditionOperator = "lte"
	OperatorIn       ConditionOperator = "in"
	OperatorNotIn    ConditionOperator = "not_in"
	OperatorContains ConditionOperator = "contains"
	OperatorBetween  ConditionOperator = "between"
)

type RuleActionType string

const (
	ActionApplyDiscount   RuleActionType = "apply_discount"
	ActionApplySurcharge  RuleActionType = "apply_surcharge"
	ActionAddFee          RuleActionType = "add_fee"
	ActionSetPrice        RuleActionType = "set_price"
	ActionApplyMultiplier RuleActionType = "apply_multiplier"
	ActionSkip            RuleActionType = "skip"
)

type ActionUnit string

const (
	UnitPercentage ActionUnit = "percentage"
	UnitFixed      ActionUnit = "fixed"
)

// RuleCondition compares one context field against a value. Value keeps the
// json-native type (number, string, bool, or list for in/not_in/between).
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

type RuleConditions []RuleCondition

func (c RuleConditions) Value() (driver.Value, error) { return jsonColumnValue(c) }
func (c *RuleConditions) Scan(src any) error          { return jsonColumnScan(src, c) }

type RuleAction struct {
	Type   RuleActionType  `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Unit   ActionUnit      `json:"unit,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

type RuleActions []RuleAction

func (a RuleActions) Value() (driver.Value, error) { return jsonColumnValue(a) }
func (a *RuleActions) Scan(src any) error          { return jsonColumnScan(src, a) }

// PricingRule is an ordered conditional adjustment attached to a model.
// Rules are scope-independent: they apply wherever the model applies.
type PricingRule struct {
	ID             int            `gorm:"primary_key" json:"id"`
	TenantId       string         `gorm:"index;size:36;not null" json:"tenant_id" binding:"required"`
	PricingModelId int            `gorm:"index;not null" json:"pricing_model_id" binding:"required"`
	Name           string         `gorm:"size:100;not null" json:"name" binding:"required"`
	Conditions     RuleConditions `gorm:"type:json" json:"conditions"`
	Actions        RuleActions    `gorm:"type:json" json:"actions"`
	Priority       int            `gorm:"index;not null;default:0" json:"priority"`
	IsActive       *bool          `gorm:"not null;default:true" json:"is_active"`
	EffectiveFrom  *time.Time     `json:"effective_from"`
	EffectiveTo    *time.Time     `json:"effective_to"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetActiveRules returns the model's rules in effect at the evaluation
// instant, highest priority first. Equal priorities fall back to id order so
// evaluation stays deterministic.
func GetActiveRules(ctx context.Context, tenantId string, pricingModelId int, at time.Time) ([]PricingRule, error) {
	db := config.GetDB()
	var rules []PricingRule
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND pricing_model_id = ?", tenantId, pricingModelId).
		Where("is_active = ?", true).
		Where("effective_from IS NULL OR effective_from <= ?", at).
		Where("effective_to IS NULL OR effective_to >= ?", at).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
