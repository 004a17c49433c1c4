package models

import "time"

// PricingOverride is a scoped, time-bounded, approvable patch to a model's
// config. An override is only usable once approved_by is set, is_active is
// true, and the evaluation instant falls inside its effective window.
type PricingOverride struct {
	ID             int           `gorm:"primary_key" json:"id"`
	TenantId       string        `gorm:"index;size:36;not null" json:"tenant_id" binding:"required"`
	PricingModelId int           `gorm:"index;not null" json:"pricing_model_id" binding:"required"`
	ScopeId        int           `gorm:"index;not null" json:"scope_id" binding:"required"`
	OverrideType   string        `gorm:"size:50;not null" json:"override_type" binding:"required"`
	OverrideValue  PricingConfig `gorm:"type:json" json:"override_value"`
	Reason         string        `gorm:"type:text" json:"reason"`
	ApprovedBy     *string       `gorm:"size:64" json:"approved_by"`
	ApprovedAt     *time.Time    `json:"approved_at"`
	EffectiveFrom  *time.Time    `gorm:"index" json:"effective_from"`
	EffectiveTo    *time.Time    `gorm:"index" json:"effective_to"`
	Version        int           `gorm:"not null;default:1" json:"version"`
	IsActive       *bool         `gorm:"not null;default:false" json:"is_active"`
	CreatedBy      string        `gorm:"size:64;not null" json:"created_by"`
	CreatedByRole  string        `gorm:"size:32" json:"created_by_role"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// Usable reports whether the override may influence a calculation at the
// given instant.
func (o *PricingOverride) Usable(at time.Time) bool {
	if o.ApprovedBy == nil || *o.ApprovedBy == "" {
		return false
	}
	if o.IsActive == nil || !*o.IsActive {
		return false
	}
	if o.EffectiveFrom != nil && at.Before(*o.EffectiveFrom) {
		return false
	}
	if o.EffectiveTo != nil && at.After(*o.EffectiveTo) {
		return false
	}
	return true
}
