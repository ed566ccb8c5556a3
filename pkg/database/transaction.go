package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

// Serializable is the isolation used for per-person read-modify-write cycles.
var Serializable = &sql.TxOptions{Isolation: sql.LevelSerializable}

type Tx interface {
	Execer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it has been closed
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
	nested   bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// GetTx returns the open transaction carried by ctx, or begins a new one and
// stores it in the returned context. A joined transaction is owned by the
// caller that began it: Commit and Rollback on it are no-ops.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(*Transaction); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, &Transaction{Tx: ctxTx.Tx, logger: logger, nested: true}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed || t.nested {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed || t.nested {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

// Transactor runs fn inside a single transaction.
type Transactor struct {
	db     DB
	opts   *sql.TxOptions
	logger ectologger.Logger
}

func NewTransactor(db DB, opts *sql.TxOptions, logger ectologger.Logger) *Transactor {
	return &Transactor{db: db, opts: opts, logger: logger}
}

// WithinTransaction commits when fn returns nil and rolls back on error or panic.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	ctxTx, tx, err := t.db.GetTx(ctx, t.opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctxTx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctxTx); rbErr != nil {
				t.logger.WithContext(ctx).WithError(rbErr).Warn("Rollback after failed transaction also failed")
			}
		}
	}()

	if err = fn(ctxTx); err != nil {
		return err
	}

	return tx.Commit(ctxTx)
}

// IsSerializationFailure reports whether err is a serialization failure or
// deadlock that is safe to retry with the same inputs.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
