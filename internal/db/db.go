// Package db opens the Postgres connection pool backing the H1B source.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/offersplus/backend/internal/metrics"
)

// Options tune the pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// StatementTimeout is sent as the session's statement_timeout so slow
	// scans fail server side instead of holding connections.
	StatementTimeout time.Duration
}

// DSN converts a postgres:// URL into a lib/pq key=value string and
// appends the statement timeout. Key=value input passes through.
func DSN(connStr string, statementTimeout time.Duration) (string, error) {
	dsn := connStr
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		parsed, err := pq.ParseURL(connStr)
		if err != nil {
			return "", fmt.Errorf("parse database url: %w", err)
		}
		dsn = parsed
	}
	if statementTimeout > 0 {
		dsn = fmt.Sprintf("%s statement_timeout=%d", dsn, statementTimeout.Milliseconds())
	}
	return strings.TrimSpace(dsn), nil
}

// Open connects and pings the database.
func Open(ctx context.Context, connStr string, opts Options) (*sql.DB, error) {
	dsn, err := DSN(connStr, opts.StatementTimeout)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Observe records the duration and outcome of a database operation.
func Observe(op string, start time.Time, err error) {
	metrics.DBOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBOperationErrors.WithLabelValues(op).Inc()
	}
}
