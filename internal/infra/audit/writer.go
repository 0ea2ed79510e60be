// Package audit records one entry per dispatched call without blocking the
// request path.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/telemetry"
)

// Sink persists audit records.
type Sink interface {
	Write(ctx context.Context, record domain.AuditRecord) error
}

type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Metrics      domain.Metrics
}

// Writer queues records for a single background consumer. When the queue is
// full the incoming record is dropped. Sink failures are logged and dropped.
type Writer struct {
	sink         Sink
	queue        chan domain.AuditRecord
	writeTimeout time.Duration
	logger       *zap.Logger
	metrics      domain.Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewWriter(sink Sink, opts Options) *Writer {
	size := opts.QueueSize
	if size <= 0 {
		size = domain.DefaultAuditQueueSize
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultAuditWriteTimeoutSeconds) * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	w := &Writer{
		sink:         sink,
		queue:        make(chan domain.AuditRecord, size),
		writeTimeout: timeout,
		logger:       logger.Named("audit"),
		metrics:      metrics,
		done:         make(chan struct{}),
	}
	go w.consume()
	return w
}

// Record enqueues rec and returns immediately. It reports ErrQueueFull or
// ErrWriterClosed when the record was discarded; callers may ignore both.
func (w *Writer) Record(rec domain.AuditRecord) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return domain.E(domain.KindAuditWriteFailure, "audit record", "", domain.ErrWriterClosed)
	}
	select {
	case w.queue <- rec:
		w.metrics.SetAuditQueueDepth(len(w.queue))
		return nil
	default:
		w.metrics.ObserveAuditDropped()
		w.logger.Warn("audit queue full, dropping record",
			telemetry.EventField(telemetry.EventAuditDropped),
			telemetry.RequestIDField(rec.RequestID),
			telemetry.ToolField(rec.Tool),
		)
		return domain.E(domain.KindAuditWriteFailure, "audit record", "", domain.ErrQueueFull)
	}
}

// Close stops accepting records and waits until queued ones are written or
// ctx is done.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) consume() {
	defer close(w.done)
	for rec := range w.queue {
		w.metrics.SetAuditQueueDepth(len(w.queue))
		w.write(rec)
	}
}

func (w *Writer) write(rec domain.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	err := w.sink.Write(ctx, rec)
	w.metrics.ObserveAuditWrite(err)
	if err != nil {
		w.logger.Warn("audit write failed",
			telemetry.EventField(telemetry.EventAuditWriteFailed),
			telemetry.RequestIDField(rec.RequestID),
			telemetry.ToolField(rec.Tool),
			zap.Error(domain.Wrap(domain.KindAuditWriteFailure, "audit write", err)),
		)
	}
}

// Summarize renders args as compact JSON capped at max bytes. Truncation
// never splits a UTF-8 sequence.
func Summarize(args map[string]any, max int) string {
	if max <= 0 {
		max = domain.DefaultAuditMaxSummaryBytes
	}
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	if len(data) <= max {
		return string(data)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut])
}
