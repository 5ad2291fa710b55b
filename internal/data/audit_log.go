package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
)

// CircuitAuditLog is the GORM model for ai_circuit_audit_logs table
type CircuitAuditLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Upstream   string    `gorm:"column:upstream;type:varchar(64);not null;index"`
	ActionType string    `gorm:"column:action_type;type:varchar(50);not null"`
	Details    string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (CircuitAuditLog) TableName() string {
	return "ai_circuit_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger. Every event is logged; when a
// database is configured it is also persisted asynchronously.
type AuditLoggerImpl struct {
	writer *asyncWriter[CircuitAuditLog]
	logger *pkglog.LogHelper
	helper *log.Helper
}

// NewAuditLogger creates a new audit logger. db may be nil.
func NewAuditLogger(db *gorm.DB, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		logger: pkglog.NewLogHelper(logger),
		helper: log.NewHelper(logger),
	}
	if db != nil {
		al.writer = newAsyncWriter[CircuitAuditLog](db, CircuitAuditLog{}.TableName(), al.helper)
	}
	return al
}

var _ biz.AuditLogger = (*AuditLoggerImpl)(nil)

// LogCircuitBroken logs circuit breaker triggered event
func (a *AuditLoggerImpl) LogCircuitBroken(_ context.Context, upstream string, failureCount int, brokenAt time.Time) {
	a.logger.Circuit("circuit opened",
		"upstream", upstream,
		"failure_count", failureCount,
		"circuit_broken_at", brokenAt.UTC().Format(time.RFC3339))
	a.record(upstream, biz.AuditEventCircuitBroken, map[string]interface{}{
		"failure_count":     failureCount,
		"circuit_broken_at": brokenAt.UTC().Format(time.RFC3339),
	})
}

// LogCircuitHalfOpen logs the first recovery probe being admitted
func (a *AuditLoggerImpl) LogCircuitHalfOpen(_ context.Context, upstream string, openFor time.Duration) {
	a.logger.Circuit("circuit half-open, probing upstream",
		"upstream", upstream,
		"open_for_seconds", openFor.Seconds())
	a.record(upstream, biz.AuditEventCircuitHalfOpen, map[string]interface{}{
		"open_for_seconds": openFor.Seconds(),
	})
}

// LogCircuitRecovered logs circuit breaker recovered event
func (a *AuditLoggerImpl) LogCircuitRecovered(_ context.Context, upstream string, recoverTime time.Duration, probeCount int) {
	a.logger.Audit("circuit recovered",
		"upstream", upstream,
		"recover_time_seconds", recoverTime.Seconds(),
		"probe_count", probeCount)
	a.record(upstream, biz.AuditEventCircuitRecovered, map[string]interface{}{
		"recover_time_seconds": recoverTime.Seconds(),
		"probe_count":          probeCount,
	})
}

// LogCircuitReset logs a manual reset
func (a *AuditLoggerImpl) LogCircuitReset(_ context.Context, upstream string, from biz.CircuitState) {
	a.logger.Audit("circuit reset",
		"upstream", upstream,
		"from_state", from.String())
	a.record(upstream, biz.AuditEventCircuitReset, map[string]interface{}{
		"from_state": from.String(),
	})
}

func (a *AuditLoggerImpl) record(upstream string, event biz.AuditEventType, details map[string]interface{}) {
	if a.writer == nil {
		return
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.helper.Errorw("msg", "failed to marshal audit log details", "error", err)
		return
	}

	a.writer.enqueue(&CircuitAuditLog{
		Upstream:   upstream,
		ActionType: string(event),
		Details:    string(detailsJSON),
	})
}

// Close flushes queued audit rows.
func (a *AuditLoggerImpl) Close() {
	if a.writer != nil {
		a.writer.close()
	}
}
