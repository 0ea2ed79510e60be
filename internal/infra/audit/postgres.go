package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"zend/internal/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS zend_audit_log (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	request_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	service TEXT NOT NULL DEFAULT '',
	duration_us BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL CHECK (status IN ('success', 'error')),
	error_kind VARCHAR(64) NOT NULL DEFAULT '',
	arguments TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_zend_audit_log_ts ON zend_audit_log(ts);
CREATE INDEX IF NOT EXISTS idx_zend_audit_log_tool ON zend_audit_log(tool);
`

const insertAudit = `INSERT INTO zend_audit_log
	(ts, request_id, tool, service, duration_us, status, error_kind, arguments)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// ConnectionString renders cfg as a lib/pq keyword/value string. Every value
// is single-quoted so passwords may contain spaces and quotes.
func ConnectionString(cfg domain.PostgresConfig) string {
	pairs := []struct{ key, value string }{
		{"host", cfg.Host},
		{"port", strconv.Itoa(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Database},
		{"sslmode", cfg.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.key+"="+quoteConnValue(p.value))
	}
	return strings.Join(parts, " ")
}

var connValueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteConnValue(value string) string {
	return "'" + connValueEscaper.Replace(value) + "'"
}

// ValidatePostgres checks the fields required to open a connection.
func ValidatePostgres(cfg domain.PostgresConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.Port <= 0 {
		return fmt.Errorf("port must be positive")
	}
	if cfg.User == "" {
		return fmt.Errorf("user is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// PostgresSink appends records to the zend_audit_log table.
type PostgresSink struct {
	conn *sql.DB
}

// OpenPostgresSink opens a pooled connection. It does not contact the server;
// call InitSchema to verify connectivity and create the table.
func OpenPostgresSink(cfg domain.PostgresConfig) (*PostgresSink, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = domain.DefaultPostgresSSLMode
	}
	if err := ValidatePostgres(cfg); err != nil {
		return nil, fmt.Errorf("invalid audit database config: %w", err)
	}
	conn, err := sql.Open("postgres", ConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresSink{conn: conn}, nil
}

// NewPostgresSink wraps an existing pool (tests).
func NewPostgresSink(conn *sql.DB) *PostgresSink {
	return &PostgresSink{conn: conn}
}

func (s *PostgresSink) InitSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.conn.ExecContext(ctx, insertAudit,
		rec.Timestamp.UTC(),
		rec.RequestID,
		rec.Tool,
		rec.Service,
		rec.Duration.Microseconds(),
		string(rec.Status),
		string(rec.ErrorKind),
		rec.ArgumentSummary,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
