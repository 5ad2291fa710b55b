package data

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
)

// setupTestDB creates a gorm connection backed by sqlmock.
func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

func testUsageRecord(requestID string) *biz.UsageRecord {
	return &biz.UsageRecord{
		CallerID:       "user-1",
		RepositoryID:   "repo-1",
		UsageKind:      biz.UsageKindAnalysis,
		TokensConsumed: 1200,
		ModelName:      "gemini-1.5-flash",
		Timestamp:      time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		RequestID:      requestID,
		EstimatedCost:  0.0000225,
	}
}

func TestUsageLedger_WritesRecords(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("INSERT INTO `ai_usage_records`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `ai_usage_records`").
		WillReturnResult(sqlmock.NewResult(2, 1))

	ledger := NewUsageLedger(db, testLogger())
	ledger.Save(context.Background(), testUsageRecord("r1"))
	ledger.Save(context.Background(), testUsageRecord("r2"))
	ledger.Save(context.Background(), nil)
	ledger.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(2), ledger.Written())
	assert.Equal(t, int64(0), ledger.Dropped())
}

func TestUsageLedger_RetriesDeadlockOnce(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("INSERT INTO `ai_usage_records`").
		WillReturnError(&gomysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectExec("INSERT INTO `ai_usage_records`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ledger := NewUsageLedger(db, testLogger())
	ledger.Save(context.Background(), testUsageRecord("r1"))
	ledger.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(1), ledger.Written())
}

func TestUsageLedger_PermanentErrorNotRetried(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("INSERT INTO `ai_usage_records`").
		WillReturnError(&gomysql.MySQLError{Number: 1406, Message: "Data too long"})

	ledger := NewUsageLedger(db, testLogger())
	ledger.Save(context.Background(), testUsageRecord("r1"))
	ledger.Close()

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(0), ledger.Written())
}

func TestUsageLedger_DropsAfterClose(t *testing.T) {
	db, mock := setupTestDB(t)

	ledger := NewUsageLedger(db, testLogger())
	ledger.Close()
	ledger.Close()

	ledger.Save(context.Background(), testUsageRecord("late"))

	assert.Equal(t, int64(1), ledger.Dropped())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogUsageSink(t *testing.T) {
	sink := NewLogUsageSink(testLogger())
	assert.NotPanics(t, func() {
		sink.Save(context.Background(), testUsageRecord("r1"))
		sink.Save(context.Background(), nil)
	})
}
