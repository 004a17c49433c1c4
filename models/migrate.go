package models

import "gorm.io/gorm"

// MigrateAll runs AutoMigrate for every table this service owns. Called from
// main and from cmd/seed-pricing.
func MigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&PricingModel{},
		&PricingRule{},
		&PricingScope{},
		&PricingOverride{},
		&BillingCycle{},
		&BillingItem{},
		&PricingAuditLog{},
		&OutboxMessage{},
	)
}
