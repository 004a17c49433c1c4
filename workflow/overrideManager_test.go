package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockManager(t *testing.T) (*OverrideManager, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	logger := logrus.New()
	audit := NewAuditTrail(gdb, logger)
	manager := NewOverrideManager(gdb, logger, audit)
	return manager, mock, func() { sqlDB.Close() }
}

func pendingOverrideRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "pricing_model_id", "scope_id", "override_type", "reason", "version", "created_by",
	}).AddRow(7, "t-1", 3, 2, "config_patch", "quarterly negotiation", 1, "sales")
}

// The approval must be a conditional update guarded on approved_by IS NULL so
// concurrent approvers cannot both win.
func TestApproveOverride_IssuesGuardedUpdate(t *testing.T) {
	manager, mock, closeDB := newMockManager(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `pricing_overrides` WHERE tenant_id = \\? AND id = \\? ORDER BY").
		WithArgs("t-1", 7).
		WillReturnRows(pendingOverrideRows())
	mock.ExpectExec("UPDATE `pricing_overrides` SET .+ WHERE tenant_id = \\? AND id = \\? AND approved_by IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `pricing_audit_logs`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	approved, err := manager.ApproveOverride(context.Background(), "t-1", 7, "finance-lead", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != "finance-lead" {
		t.Fatalf("expected approved_by finance-lead, got %v", approved.ApprovedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApproveOverride_LostRaceRollsBack(t *testing.T) {
	manager, mock, closeDB := newMockManager(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `pricing_overrides` WHERE tenant_id = \\? AND id = \\? ORDER BY").
		WithArgs("t-1", 7).
		WillReturnRows(pendingOverrideRows())
	// A concurrent approval slipped in between the read and the update.
	mock.ExpectExec("UPDATE `pricing_overrides` SET .+ WHERE tenant_id = \\? AND id = \\? AND approved_by IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := manager.ApproveOverride(context.Background(), "t-1", 7, "finance-lead", "admin")
	if !errors.Is(err, ErrOverrideAlreadyApproved) {
		t.Fatalf("expected ErrOverrideAlreadyApproved, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApproveOverride_AlreadyApprovedSkipsUpdate(t *testing.T) {
	manager, mock, closeDB := newMockManager(t)
	defer closeDB()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "pricing_model_id", "scope_id", "override_type", "version", "created_by", "approved_by",
	}).AddRow(7, "t-1", 3, 2, "config_patch", 1, "sales", "finance-lead")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `pricing_overrides` WHERE tenant_id = \\? AND id = \\? ORDER BY").
		WithArgs("t-1", 7).
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := manager.ApproveOverride(context.Background(), "t-1", 7, "another-approver", "admin")
	if !errors.Is(err, ErrOverrideAlreadyApproved) {
		t.Fatalf("expected ErrOverrideAlreadyApproved, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
