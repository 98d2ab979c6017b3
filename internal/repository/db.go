package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DB is an sqlx handle plus the pgx pool backing it on postgres. Queries
// are written with ? placeholders and rebound per driver.
type DB struct {
	X      *sqlx.DB
	driver string
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the configured database. Postgres goes through a pgx
// pool wrapped as *sql.DB; sqlite uses the pure-Go modernc driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	switch cfg.Driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one connection: a :memory: database is per connection and sqlite
		// serializes writers anyway
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
		logger.Info("repository.open.ok", "driver", cfg.Driver)
		return &DB{X: db, driver: cfg.Driver, logger: logger}, nil

	case DriverPostgres:
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("repository.open.failed", "driver", cfg.Driver, "error", err)
			return nil, fmt.Errorf("parse postgres dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			pc.MinConns = cfg.MinConns
		}
		pc.MaxConnLifetime = cfg.MaxConnLifetime
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		pc.ConnConfig.RuntimeParams["application_name"] = "statement-agent"

		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("repository.open.failed", "driver", cfg.Driver, "error", err)
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("repository.open.ok", "driver", cfg.Driver)
		db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
		return &DB{X: db, driver: cfg.Driver, pool: pool, logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q (want %s or %s)", cfg.Driver, DriverSQLite, DriverPostgres)
}

// Close closes the handle and the pool behind it.
func (db *DB) Close() {
	if err := db.X.Close(); err != nil {
		db.logger.Error("repository.close.failed", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

// HealthCheck pings the database to catch DSN issues early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.X.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		source         TEXT NOT NULL,
		document_path  TEXT NOT NULL,
		document_hash  TEXT NOT NULL DEFAULT '',
		max_iterations INTEGER NOT NULL,
		state          TEXT NOT NULL,
		error_message  TEXT,
		started_at     TEXT NOT NULL,
		finished_at    TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS iterations (
		run_id       TEXT NOT NULL REFERENCES runs(id),
		attempt      INTEGER NOT NULL,
		extractor_id TEXT NOT NULL,
		program_json TEXT,
		passed       INTEGER NOT NULL,
		mismatches   INTEGER NOT NULL,
		diff         TEXT NOT NULL DEFAULT '',
		started_at   TEXT NOT NULL,
		finished_at  TEXT NOT NULL,
		PRIMARY KEY (run_id, attempt)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_source_idx ON runs (source, started_at)`,
}

// Migrate creates the audit tables when missing.
func (db *DB) Migrate(ctx context.Context) error {
	return withTx(ctx, db.X, func(tx *sqlx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
