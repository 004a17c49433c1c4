package models

import "time"

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Billing lifecycle events emitted through the outbox.
const (
	OutboxEventCycleCreated      = "billing_cycle.created"
	OutboxEventCycleClosed       = "billing_cycle.closed"
	OutboxEventCycleStatusChange = "billing_cycle.status_changed"
	OutboxEventItemAdded         = "billing_item.added"
)

// OutboxMessage is written in the same transaction as the billing mutation it
// describes and published to Pub/Sub by the OutboxDispatcher. Core operations
// never block on the broker.
type OutboxMessage struct {
	ID               int        `gorm:"primary_key" json:"id"`
	TenantId         string     `gorm:"index;size:36;not null" json:"tenant_id"`
	EventType        string     `gorm:"index;size:64;not null" json:"event_type"`
	Payload          string     `gorm:"type:json;not null" json:"payload"`
	CorrelationId    string     `gorm:"size:64" json:"correlation_id"`
	IsProcessed      bool       `gorm:"index;not null;default:false" json:"is_processed"`
	PublishStatus    string     `gorm:"index;size:16;not null;default:'PENDING'" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time `gorm:"index" json:"next_attempt_at"`
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:64" json:"pub_sub_message_id"`
	LockedAt         *time.Time `json:"locked_at"`
	LockedBy         *string    `gorm:"size:64" json:"locked_by"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
