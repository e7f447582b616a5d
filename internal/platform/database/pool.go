// Package database opens the PostgreSQL pool shared by the certificate
// store, the pending-write log and the outbox.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ErrNoURL is returned by Open when no connection URL is configured.
var ErrNoURL = errors.New("database url is required")

const defaultPingTimeout = 5 * time.Second

// Config holds pool sizing. The zero value of any field keeps the default.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig sizes the pool for one API process with a reconcile worker
// and an outbox worker sharing it.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// Pool is an opened *sql.DB backed by pgx.
type Pool struct {
	db *sql.DB
}

// Open connects and pings within ctx (or 5s when ctx has no deadline).
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{db: db}, nil
}

// DB exposes the handle for stores and migrations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Register exports sql.DBStats as go_sql_* metrics labelled db_name=certledger.
func (p *Pool) Register(reg prometheus.Registerer) error {
	return reg.Register(collectors.NewDBStatsCollector(p.db, "certledger"))
}

// Close closes the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}
