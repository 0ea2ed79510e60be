package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/telemetry"
)

// LogSink writes records as structured log lines. It is the default when no
// database is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit_log")}
}

func (s *LogSink) Write(_ context.Context, rec domain.AuditRecord) error {
	fields := []zap.Field{
		zap.Time("timestamp", rec.Timestamp),
		telemetry.RequestIDField(rec.RequestID),
		telemetry.ToolField(rec.Tool),
		telemetry.ServiceField(rec.Service),
		zap.Duration("duration", rec.Duration),
		zap.String("status", string(rec.Status)),
		zap.String("arguments", rec.ArgumentSummary),
	}
	if rec.ErrorKind != "" {
		fields = append(fields, telemetry.KindField(rec.ErrorKind))
	}
	s.logger.Info("audit", fields...)
	return nil
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (s *MemorySink) Write(_ context.Context, rec domain.AuditRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditRecord(nil), s.records...)
}
