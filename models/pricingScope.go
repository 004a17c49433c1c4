package models

import "time"

type ScopeType string

const (
	ScopeTypeGlobal     ScopeType = "global"
	ScopeTypeDeployment ScopeType = "deployment"
	ScopeTypePartner    ScopeType = "partner"
	ScopeTypeClient     ScopeType = "client"
	ScopeTypeMerchant   ScopeType = "merchant"
	ScopeTypeAgent      ScopeType = "agent"
	ScopeTypeStaff      ScopeType = "staff"
	ScopeTypeIndividual ScopeType = "individual"
	ScopeTypeGroup      ScopeType = "group"
	ScopeTypeSegment    ScopeType = "segment"
	ScopeTypeContract   ScopeType = "contract"
)

func (t ScopeType) IsValid() bool {
	switch t {
	case ScopeTypeGlobal, ScopeTypeDeployment, ScopeTypePartner, ScopeTypeClient,
		ScopeTypeMerchant, ScopeTypeAgent, ScopeTypeStaff, ScopeTypeIndividual,
		ScopeTypeGroup, ScopeTypeSegment, ScopeTypeContract:
		return true
	}
	return false
}

// PricingScope links a pricing model to a targeting context within a tenant.
type PricingScope struct {
	ID             int       `gorm:"primary_key" json:"id"`
	TenantId       string    `gorm:"index;size:36;not null" json:"tenant_id" binding:"required"`
	PricingModelId int       `gorm:"index;not null" json:"pricing_model_id" binding:"required"`
	ScopeType      ScopeType `gorm:"type:enum('global','deployment','partner','client','merchant','agent','staff','individual','group','segment','contract');default:'global';index;size:20;not null" json:"scope_type" binding:"required"`
	ScopeId        *string   `gorm:"index;size:64" json:"scope_id"`
	DeploymentType *string   `gorm:"index;size:64" json:"deployment_type"`
	IsOverride     *bool     `gorm:"not null;default:false" json:"is_override"`
	ParentScopeId  *int      `gorm:"index" json:"parent_scope_id"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResolutionPrecedence builds the candidate scope-type list for resolution,
// most specific first. The requested type sits at its natural position
// (after the always-more-specific types, before deployment/global);
// duplicates collapse to their first occurrence.
func ResolutionPrecedence(requested ScopeType) []ScopeType {
	order := []ScopeType{
		ScopeTypeIndividual,
		ScopeTypeContract,
		ScopeTypeSegment,
		ScopeTypeGroup,
		requested,
		ScopeTypeDeployment,
		ScopeTypeGlobal,
	}
	seen := make(map[ScopeType]bool, len(order))
	out := make([]ScopeType, 0, len(order))
	for _, s := range order {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
