package config

import (
	"os"
	"strings"
)

// ClampFinalPrice extends the minimum/maximum charge clamp to the
// rule-adjusted final price, not just the base price stage.
//
// The historical behavior clamps the base price only; some tenants want the
// bounds to hold after discounts/surcharges as well. Keep the old behavior
// the default until reporting is migrated.
//
// Set via env:
// - CLAMP_FINAL_PRICE=true
func ClampFinalPrice() bool {
	return boolFromEnv("CLAMP_FINAL_PRICE")
}

// StrictCycleCurrency rejects billing items whose currency differs from the
// cycle's existing items. Enabled by default; set STRICT_CYCLE_CURRENCY=false
// only for backfill jobs migrating legacy mixed-currency cycles.
func StrictCycleCurrency() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_CYCLE_CURRENCY")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
