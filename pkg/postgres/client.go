// Package postgres opens the platform's shared PostgreSQL pool via lib/pq
// and adds a small transaction helper.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	_ "github.com/lib/pq"
)

// connectTimeout bounds the startup ping.
const connectTimeout = 5 * time.Second

// Client owns a *sql.DB pool. DB is exported: callers issue their own
// queries and this package stays out of the SQL.
type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and verifies connectivity, so a bad DSN surfaces at
// startup rather than on the first query.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping verifies the database connection, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// MetricsCollector returns a Prometheus collector exposing the pool's
// sql.DBStats (open connections, wait counts, idle closes) labeled with the
// database name. Register it once per process.
func (c *Client) MetricsCollector() prometheus.Collector {
	return collectors.NewDBStatsCollector(c.DB, c.cfg.Database)
}

// InTx runs fn inside a transaction, committing on nil and rolling back on
// error. A rollback failure is joined onto fn's error so neither is lost.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
