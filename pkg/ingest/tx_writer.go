package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WriteFunc is a callback that performs database writes inside a transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// ErrWriterClosed is returned when submitting to a committed or rolled back writer.
var ErrWriterClosed = errors.New("tx writer closed")

// TxWriter runs every submitted write inside one transaction and commits once.
// The first failing write rolls the whole transaction back.
type TxWriter struct {
	tx      *sql.Tx
	ctx     context.Context
	writes  int
	closed  bool
	lastErr error
}

// NewTxWriter begins the transaction that all writes will share.
func NewTxWriter(ctx context.Context, db *sql.DB) (*TxWriter, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin load tx: %w", err)
	}
	return &TxWriter{tx: tx, ctx: ctx}, nil
}

// Submit runs w immediately inside the shared transaction. After an error the
// transaction is rolled back and further submissions fail.
func (w *TxWriter) Submit(fn WriteFunc) error {
	if w.closed {
		if w.lastErr != nil {
			return w.lastErr
		}
		return ErrWriterClosed
	}
	if err := w.ctx.Err(); err != nil {
		w.abort(err)
		return err
	}
	if err := fn(w.ctx, w.tx); err != nil {
		w.abort(err)
		return err
	}
	w.writes++
	return nil
}

// Writes returns the number of successful submissions.
func (w *TxWriter) Writes() int { return w.writes }

func (w *TxWriter) abort(err error) {
	w.lastErr = err
	w.closed = true
	_ = w.tx.Rollback()
}

// Commit commits the transaction. It returns the first write error if one
// already aborted the writer.
func (w *TxWriter) Commit() error {
	if w.closed {
		if w.lastErr != nil {
			return w.lastErr
		}
		return ErrWriterClosed
	}
	w.closed = true
	if err := w.tx.Commit(); err != nil {
		w.lastErr = fmt.Errorf("failed to commit load (%d writes): %w", w.writes, err)
		return w.lastErr
	}
	return nil
}

// Rollback discards the transaction. It is a no-op after Commit.
func (w *TxWriter) Rollback() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.tx.Rollback()
}
