package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pricing_backend/utils"
)

type PricingModel struct {
	ID        int              `gorm:"primary_key" json:"id"`
	TenantId  string           `gorm:"index;size:36;not null" json:"tenant_id" binding:"required"`
	Name      string           `gorm:"index;size:100;not null" json:"name" binding:"required"`
	ModelType PricingModelType `gorm:"type:enum('flat','usage_based','tiered','subscription','revenue_share','hybrid');default:'flat';index;size:20;not null" json:"model_type" binding:"required"`
	Config    PricingConfig    `gorm:"type:json" json:"config"`
	IsActive  *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPricingModel(ctx context.Context, tenantId string, id int) (*PricingModel, error) {
	return utils.FetchModel[PricingModel](ctx, tenantId, id)
}
