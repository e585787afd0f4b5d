package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

type fakeDB struct {
	statements []string
	txCalls    int
	readCalls  int
	txErr      error
}

func (f *fakeDB) Exec(_ context.Context, statements ...string) error {
	f.statements = append(f.statements, statements...)
	return nil
}

func (f *fakeDB) InTx(_ context.Context, _ func(tx *sql.Tx) error) error {
	f.txCalls++
	return f.txErr
}

func (f *fakeDB) InReadTx(_ context.Context, _ func(tx *sql.Tx) error) error {
	f.readCalls++
	return f.txErr
}

func TestMigrateCreatesTables(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db, resilience.RetryConfig{}).Migrate(context.Background()))
	require.Len(t, db.statements, 2)
	assert.True(t, strings.Contains(db.statements[0], "documents"))
	assert.True(t, strings.Contains(db.statements[1], "staged_batches"))
}

func TestSaveBatchesRetriesTransaction(t *testing.T) {
	down := errors.New("connection reset")
	db := &fakeDB{txErr: down}
	s := New(db, resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	err := s.SaveBatches(context.Background(), "doc-1", "req", 1, []json.RawMessage{json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 3, db.txCalls)

	db.txCalls = 0
	err = s.MarkFailed(context.Background(), "doc-1", errors.New("bad"))
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 3, db.txCalls)
}

func TestStatusWrapsErrors(t *testing.T) {
	db := &fakeDB{txErr: sql.ErrNoRows}
	s := New(db, resilience.RetryConfig{})
	_, err := s.Status(context.Background(), "doc-1")
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.Equal(t, 1, db.readCalls)
	assert.Zero(t, db.txCalls)

	s = New(&fakeDB{txErr: errors.New("down")}, resilience.RetryConfig{})
	_, err = s.Status(context.Background(), "doc-1")
	assert.ErrorContains(t, err, "reading status of doc-1")
}
