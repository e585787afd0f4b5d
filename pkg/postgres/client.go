// Package postgres opens a lib/pq connection pool from config and runs
// work inside transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and waits for the server to answer, retrying the
// ping with backoff so the stager can start alongside its database.
func New(ctx context.Context, cfg config.PostgresConfig, retry resilience.RetryConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{
		DB:     db,
		logger: slog.Default().With("component", "postgres", "host", cfg.Host, "database", cfg.Database),
	}
	err = resilience.Retry(ctx, "postgres-ping", retry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return c.Ping(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	c.logger.Info("postgres connected")
	return c, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping checks that a connection can be made; it doubles as a health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Exec runs statements in order outside a transaction.
func (c *Client) Exec(ctx context.Context, statements ...string) error {
	for i, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement %d: %w", i, err)
		}
	}
	return nil
}

// InTx runs fn in a read-write transaction, committing when fn succeeds.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.inTx(ctx, nil, fn)
}

// InReadTx runs fn in a read-only transaction.
func (c *Client) InReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.inTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (c *Client) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
