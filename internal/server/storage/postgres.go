// Package storage owns the process-wide PostgreSQL connection pool: it is
// opened once at startup, shared by every request and closed on shutdown
// after the servers have drained.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig sizes the pool. Zero values keep database/sql defaults except
// MaxOpenConns, which must be positive so pool exhaustion is observable.
type PoolConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// openDB is a seam for tests.
var openDB = sql.Open

// Open creates the pool and verifies connectivity. A ping failure is
// reported as common.ErrStoreUnavailable.
func Open(ctx context.Context, cfg PoolConfig) (*sql.DB, error) {
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}

	db, err := openDB("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := Ping(ctx, db, cfg.PingTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks the pool within timeout.
func Ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := dbx.Bound(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", dbx.Classify(err))
	}
	return nil
}
