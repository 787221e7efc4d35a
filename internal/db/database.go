// Package db is the storage adapter: a bounded connection pool over
// Postgres with retrying startup, scoped transactions, and a health probe.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
)

// Config configures the pool. MinConns/MaxConns bound pool size; the
// underlying driver only exposes max-open/max-idle, so MinConns informs
// MaxIdleConns.
type Config struct {
	URL      string
	MinConns int
	MaxConns int
}

// Database wraps the pooled *sql.DB handle with the Storage Adapter API.
type Database struct {
	db *sql.DB
}

// Open establishes the pool, retrying up to 10 times with linear backoff
// (1s..10s) before failing startup, per the storage adapter's retry policy.
func Open(cfg Config) (*Database, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 20
	}
	if cfg.MinConns <= 0 {
		cfg.MinConns = 2
	}

	var lastErr error
	for attempt := 1; attempt <= 10; attempt++ {
		sqlDB, err := sql.Open("postgres", cfg.URL)
		if err == nil {
			sqlDB.SetMaxOpenConns(cfg.MaxConns)
			sqlDB.SetMaxIdleConns(cfg.MinConns)
			sqlDB.SetConnMaxLifetime(30 * time.Minute)
			sqlDB.SetConnMaxIdleTime(5 * time.Minute)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
			if err == nil {
				return &Database{db: sqlDB}, nil
			}
			sqlDB.Close()
		}
		lastErr = err
		storageLog := logger.Storage()
		storageLog.Warn().Int("attempt", attempt).Err(err).Msg("database connection attempt failed")
		backoff := time.Duration(attempt) * time.Second
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
		time.Sleep(backoff)
	}
	return nil, fmt.Errorf("failed to open database pool after 10 attempts: %w", lastErr)
}

// OpenForTesting wraps an existing *sql.DB (e.g. go-sqlmock) for tests.
func OpenForTesting(sqlDB *sql.DB) *Database {
	return &Database{db: sqlDB}
}

func (d *Database) Close() error { return d.db.Close() }

func (d *Database) SQL() *sql.DB { return d.db }

// Probe issues SELECT 1 and reports pool utilization, used by the health
// aggregator's readiness check and /health/stack.
type ProbeResult struct {
	Healthy      bool
	ResponseTime time.Duration
	ActiveConns  int
	IdleConns    int
	Error        string
}

func (d *Database) Probe(ctx context.Context) ProbeResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := d.db.ExecContext(ctx, "SELECT 1")
	stats := d.db.Stats()
	metrics.DatabaseConnectionsActive.Set(float64(stats.InUse))

	res := ProbeResult{
		ResponseTime: time.Since(start),
		ActiveConns:  stats.InUse,
		IdleConns:    stats.Idle,
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Healthy = true
	return res
}

// Transaction runs fn with a scoped *sql.Tx, committing on success and
// rolling back on any error or panic — the scoped-acquisition equivalent of
// the source's context-manager pooled resources.
func (d *Database) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyPoolErr(err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

func classifyPoolErr(err error) error {
	if err == sql.ErrConnDone || err == context.DeadlineExceeded {
		return errors.ResourceBusy("database pool exhausted")
	}
	return errors.Internal(err)
}

// recordQueryDuration observes database_query_duration_seconds for a query
// that already ran; called by timedExec (every write helper) and by
// InsertEventMirror. Read helpers that query directly are not timed.
func recordQueryDuration(operation, table string, start time.Time) {
	metrics.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
