package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingItem is one priced line inside a billing cycle. UnitPrice is the
// effective, rule-adjusted unit price (finalPrice / quantity); the raw base
// price and the full adjustment breakdown live in Metadata.
type BillingItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	TenantId       string          `gorm:"index;size:36;not null" json:"tenant_id" binding:"required"`
	BillingCycleId int             `gorm:"index;not null" json:"billing_cycle_id" binding:"required"`
	PricingModelId int             `gorm:"index;not null" json:"pricing_model_id" binding:"required"`
	ItemType       string          `gorm:"index;size:64;not null" json:"item_type" binding:"required"`
	Description    string          `gorm:"type:text" json:"description"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	Currency       string          `gorm:"size:8;not null" json:"currency"`
	Metadata       JSONMap         `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
