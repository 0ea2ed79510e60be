package audit

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zend/internal/domain"
)

// postgresConfigFromEnv skips unless ZEND_POSTGRES_HOST points at a server.
func postgresConfigFromEnv(t *testing.T) domain.PostgresConfig {
	t.Helper()
	host := os.Getenv("ZEND_POSTGRES_HOST")
	if host == "" {
		t.Skip("Skipping PostgreSQL integration test (ZEND_POSTGRES_HOST not set)")
	}
	return domain.PostgresConfig{
		Host:     host,
		Port:     domain.DefaultPostgresPort,
		User:     getEnvOrDefault("ZEND_POSTGRES_USER", "postgres"),
		Password: getEnvOrDefault("ZEND_POSTGRES_PASSWORD", "postgres"),
		Database: getEnvOrDefault("ZEND_POSTGRES_DB", "postgres"),
		SSLMode:  domain.DefaultPostgresSSLMode,
	}
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := postgresConfigFromEnv(t)

	sink, err := OpenPostgresSink(cfg)
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sink.InitSchema(ctx))

	rec := record("integration-1")
	rec.ErrorKind = domain.KindTimeout
	rec.Status = domain.AuditStatusError
	require.NoError(t, sink.Write(ctx, rec))

	var count int
	err = sink.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM zend_audit_log WHERE request_id = $1 AND error_kind = $2",
		"integration-1", string(domain.KindTimeout)).Scan(&count)
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 1)

	_, _ = sink.conn.ExecContext(ctx, "DELETE FROM zend_audit_log WHERE request_id = $1", "integration-1")
}

func TestPostgresSink_LongToolName(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := postgresConfigFromEnv(t)

	sink, err := OpenPostgresSink(cfg)
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sink.InitSchema(ctx))

	rec := record("integration-long-tool")
	rec.Tool = strings.Repeat("t", 4096)
	rec.Status = domain.AuditStatusError
	rec.ErrorKind = domain.KindUnknownTool
	require.NoError(t, sink.Write(ctx, rec))

	_, _ = sink.conn.ExecContext(ctx, "DELETE FROM zend_audit_log WHERE request_id = $1", "integration-long-tool")
}
