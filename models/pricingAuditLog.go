package models

import "time"

// Audit actions written by this service. Action strings are part of the audit
// contract; downstream consumers filter on them.
const (
	AuditActionCreate       = "create"
	AuditActionApprove      = "approve"
	AuditActionDeactivate   = "deactivate"
	AuditActionClose        = "close"
	AuditActionStatusChange = "status_change"
	AuditActionAddItem      = "add_item"
	AuditActionReverse      = "reverse"
)

const (
	AuditEntityOverride     = "pricing_override"
	AuditEntityBillingCycle = "billing_cycle"
	AuditEntityBillingItem  = "billing_item"
)

// PricingAuditLog is append-only. After creation only reversed_by/reversed_at
// may ever change, and only once, through AuditTrail.ReverseAction.
type PricingAuditLog struct {
	ID            int        `gorm:"primary_key" json:"id"`
	TenantId      string     `gorm:"index;size:36;not null" json:"tenant_id" binding:"required"`
	EntityType    string     `gorm:"index;size:50;not null" json:"entity_type" binding:"required"`
	EntityId      string     `gorm:"index;size:64;not null" json:"entity_id" binding:"required"`
	Action        string     `gorm:"index;size:50;not null" json:"action" binding:"required"`
	ActorId       string     `gorm:"index;size:64;not null" json:"actor_id" binding:"required"`
	ActorRole     string     `gorm:"index;size:32" json:"actor_role"`
	PreviousState JSONMap    `gorm:"type:json" json:"previous_state"`
	NewState      JSONMap    `gorm:"type:json" json:"new_state"`
	Reason        *string    `gorm:"type:text" json:"reason"`
	IsReversible  *bool      `gorm:"not null;default:true" json:"is_reversible"`
	ReversedBy    *string    `gorm:"size:64" json:"reversed_by"`
	ReversedAt    *time.Time `json:"reversed_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
