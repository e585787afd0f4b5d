// Package recordstore persists extracted record batches and per-document
// staging status in PostgreSQL.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

// Document statuses.
const (
	StatusStaged = "STAGED"
	StatusFailed = "FAILED"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		doc_id     TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		entries    INTEGER NOT NULL DEFAULT 0,
		error      TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS staged_batches (
		doc_id      TEXT NOT NULL,
		request_key TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		payload     JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (doc_id, request_key, seq)
	)`,
}

const upsertDocument = `
	INSERT INTO documents (doc_id, status, entries, error, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (doc_id) DO UPDATE
	SET status = EXCLUDED.status, entries = EXCLUDED.entries,
	    error = EXCLUDED.error, updated_at = NOW()`

// DB is the subset of the postgres client the store needs.
type DB interface {
	Exec(ctx context.Context, statements ...string) error
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	InReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// ErrNoDocument is returned by Status for an unknown document.
var ErrNoDocument = errors.New("document not staged")

type Store struct {
	db     DB
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(db DB, retry resilience.RetryConfig) *Store {
	return &Store{
		db:     db,
		retry:  retry,
		logger: slog.Default().With("component", "record-store"),
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Exec(ctx, schema...)
}

// SaveBatches replaces the stored batches of (docID, requestKey) and marks
// the document staged, in one transaction.
func (s *Store) SaveBatches(ctx context.Context, docID, requestKey string, entries int, batches []json.RawMessage) error {
	return resilience.Retry(ctx, "save-batches", s.retry, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM staged_batches WHERE doc_id = $1 AND request_key = $2`,
				docID, requestKey,
			); err != nil {
				return fmt.Errorf("clearing batches: %w", err)
			}
			for seq, b := range batches {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO staged_batches (doc_id, request_key, seq, payload) VALUES ($1, $2, $3, $4)`,
					docID, requestKey, seq, []byte(b),
				); err != nil {
					return fmt.Errorf("inserting batch %d: %w", seq, err)
				}
			}
			if _, err := tx.ExecContext(ctx, upsertDocument, docID, StatusStaged, entries, ""); err != nil {
				return fmt.Errorf("updating document status: %w", err)
			}
			return nil
		})
	})
}

// MarkFailed records that staging docID failed with reason.
func (s *Store) MarkFailed(ctx context.Context, docID string, reason error) error {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return resilience.Retry(ctx, "mark-failed", s.retry, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, upsertDocument, docID, StatusFailed, 0, msg)
			return err
		})
	})
}

// Status returns the staging status of docID.
func (s *Store) Status(ctx context.Context, docID string) (string, error) {
	var status string
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE doc_id = $1`, docID).Scan(&status)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", docID, ErrNoDocument)
	}
	if err != nil {
		return "", fmt.Errorf("reading status of %s: %w", docID, err)
	}
	return status, nil
}

// Batches returns the stored payloads of (docID, requestKey) in order.
func (s *Store) Batches(ctx context.Context, docID, requestKey string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT payload FROM staged_batches WHERE doc_id = $1 AND request_key = $2 ORDER BY seq`,
			docID, requestKey,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				return err
			}
			out = append(out, json.RawMessage(payload))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("reading batches of %s: %w", docID, err)
	}
	return out, nil
}
