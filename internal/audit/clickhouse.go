package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Table is the ClickHouse table audit entries are written to.
const Table = "cloudspectre_actions"

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS ` + Table + ` (
		event_time    DateTime64(3, 'UTC'),
		dry_run       Bool,
		succeeded     Bool,
		region        LowCardinality(String),
		action        LowCardinality(String),
		resource_type LowCardinality(String),
		resource_id   String,
		name          String,
		reason        String,
		days_overdue  Float64,
		billing_tag   String,
		cluster_name  String,
		owner         String,
		rule          LowCardinality(String)
	)
	ENGINE = MergeTree
	ORDER BY (event_time, region, resource_id)
`

const insertQuery = `
	INSERT INTO ` + Table + ` (
		event_time, dry_run, succeeded, region, action, resource_type,
		resource_id, name, reason, days_overdue, billing_tag, cluster_name,
		owner, rule
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// ClickHouseSink writes one row per executed action.
type ClickHouseSink struct {
	db    *sql.DB
	retry retryPolicy
}

// NewClickHouseSink connects to dsn and creates the audit table if missing.
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit DSN: %w", err)
	}

	opts.MaxOpenConns = 2
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = time.Hour
	opts.DialTimeout = 10 * time.Second

	sink, err := newClickHouseSink(ctx, clickhouse.OpenDB(opts), defaultRetryPolicy())
	if err != nil {
		return nil, err
	}
	if len(opts.Addr) > 0 {
		slog.Debug("connected to audit store", slog.String("addr", opts.Addr[0]))
	}
	return sink, nil
}

func newClickHouseSink(ctx context.Context, db *sql.DB, retry retryPolicy) (*ClickHouseSink, error) {
	err := withRetry(ctx, retry, func() error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		_, err := db.ExecContext(ctx, createTableQuery)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare audit table: %w", err)
	}
	return &ClickHouseSink{db: db, retry: retry}, nil
}

// Record inserts e. Failures are logged and dropped.
func (s *ClickHouseSink) Record(ctx context.Context, e Entry) {
	a := e.Action
	err := withRetry(ctx, s.retry, func() error {
		_, err := s.db.ExecContext(ctx, insertQuery,
			e.Time.UTC(),
			e.DryRun,
			e.Succeeded,
			a.Region,
			string(a.Action),
			string(a.ResourceType),
			a.TargetID(),
			a.Name,
			a.Reason,
			a.DaysOverdue,
			a.BillingTag,
			a.ClusterName,
			a.Owner,
			a.Rule,
		)
		return err
	})
	if err != nil {
		slog.Warn("failed to record audit entry",
			slog.String("action", string(a.Action)),
			slog.String("resource_id", a.TargetID()),
			slog.String("error", err.Error()),
		)
	}
}

// Close releases the connection pool.
func (s *ClickHouseSink) Close() error {
	return s.db.Close()
}
