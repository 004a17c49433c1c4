package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireBillingLock serializes mutations of one billing cycle across
// instances using MySQL advisory locks. GET_LOCK is connection-scoped, so
// this must be called on the same *gorm.DB transaction that will do the
// mutation.
func AcquireBillingLock(tx *gorm.DB, tenantId string, cycleId int) error {
	lockName := fmt.Sprintf("billing:%s:%d", tenantId, cycleId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire billing lock for tenant_id=%s cycle_id=%d", tenantId, cycleId)
	}
	return nil
}

func ReleaseBillingLock(tx *gorm.DB, tenantId string, cycleId int) {
	lockName := fmt.Sprintf("billing:%s:%d", tenantId, cycleId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
