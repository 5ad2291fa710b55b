package data

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
)

// UsageRecordPO is the GORM model for the ai_usage_records table.
type UsageRecordPO struct {
	ID             int64     `gorm:"primaryKey;column:id"`
	RequestID      string    `gorm:"column:request_id;type:varchar(64);not null;uniqueIndex"`
	CallerID       string    `gorm:"column:caller_id;type:varchar(128);not null;index"`
	RepositoryID   string    `gorm:"column:repository_id;type:varchar(128);index"`
	OrgID          string    `gorm:"column:org_id;type:varchar(128);index"`
	UsageKind      string    `gorm:"column:usage_kind;type:varchar(32);not null"`
	TokensConsumed int64     `gorm:"column:tokens_consumed;not null"`
	ModelName      string    `gorm:"column:model_name;type:varchar(64);not null"`
	EstimatedCost  float64   `gorm:"column:estimated_cost;type:decimal(14,8);not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index"`
}

// TableName specifies the table name for GORM
func (UsageRecordPO) TableName() string {
	return "ai_usage_records"
}

func toUsageRecordPO(r *biz.UsageRecord) *UsageRecordPO {
	return &UsageRecordPO{
		RequestID:      r.RequestID,
		CallerID:       r.CallerID,
		RepositoryID:   r.RepositoryID,
		OrgID:          r.OrgID,
		UsageKind:      r.UsageKind,
		TokensConsumed: r.TokensConsumed,
		ModelName:      r.ModelName,
		EstimatedCost:  r.EstimatedCost,
		CreatedAt:      r.Timestamp,
	}
}

// UsageLedger persists usage records to MySQL asynchronously.
type UsageLedger struct {
	writer *asyncWriter[UsageRecordPO]
	logger *pkglog.LogHelper
}

// NewUsageLedger creates a ledger and starts its writer goroutine.
func NewUsageLedger(db *gorm.DB, logger log.Logger) *UsageLedger {
	return &UsageLedger{
		writer: newAsyncWriter[UsageRecordPO](db, UsageRecordPO{}.TableName(), log.NewHelper(logger)),
		logger: pkglog.NewLogHelper(logger),
	}
}

var _ biz.UsageRecordSink = (*UsageLedger)(nil)

// Save queues the record. It never blocks the request path.
func (l *UsageLedger) Save(_ context.Context, record *biz.UsageRecord) {
	if record == nil {
		return
	}
	if !l.writer.enqueue(toUsageRecordPO(record)) {
		l.logger.Usage("usage record dropped",
			"request_id", record.RequestID,
			"caller_id", record.CallerID,
			"tokens", record.TokensConsumed)
	}
}

// Written returns the number of rows inserted so far.
func (l *UsageLedger) Written() int64 { return l.writer.written.Load() }

// Dropped returns the number of records discarded.
func (l *UsageLedger) Dropped() int64 { return l.writer.dropped.Load() }

// Close flushes queued records.
func (l *UsageLedger) Close() { l.writer.close() }

// LogUsageSink writes usage records to the log only. It is used when no
// ledger database is configured.
type LogUsageSink struct {
	logger *pkglog.LogHelper
}

// NewLogUsageSink creates a log-only sink.
func NewLogUsageSink(logger log.Logger) *LogUsageSink {
	return &LogUsageSink{logger: pkglog.NewLogHelper(logger)}
}

var _ biz.UsageRecordSink = (*LogUsageSink)(nil)

// Save logs the record.
func (s *LogUsageSink) Save(_ context.Context, record *biz.UsageRecord) {
	if record == nil {
		return
	}
	s.logger.Usage("usage recorded",
		"request_id", record.RequestID,
		"caller_id", record.CallerID,
		"repository_id", record.RepositoryID,
		"usage_kind", record.UsageKind,
		"model", record.ModelName,
		"tokens", record.TokensConsumed,
		"estimated_cost", record.EstimatedCost)
}
