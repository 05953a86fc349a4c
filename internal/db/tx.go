package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

type txKey struct{}

// WithTx stores a SQL transaction in context for downstream repositories.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom extracts a SQL transaction from context if present.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Executor is the subset of *sql.DB and *sql.Tx repositories use.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFrom returns the transaction carried by ctx, or db when there is none.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}

// TxRunner runs a unit of work atomically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLTxRunner runs fn inside a database/sql transaction bounded by Timeout.
type SQLTxRunner struct {
	DB      *sql.DB
	Timeout time.Duration
}

// NewSQLTxRunner returns a runner with a 10s transaction timeout.
func NewSQLTxRunner(db *sql.DB) *SQLTxRunner {
	return &SQLTxRunner{DB: db, Timeout: 10 * time.Second}
}

// RunInTx begins a transaction, calls fn with the tx in context and commits when fn returns nil.
// A transaction already present in ctx is reused so nested calls join the outer unit of work.
func (r *SQLTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type undoKey struct{}

type undoLog struct {
	mu  sync.Mutex
	fns []func()
}

// OnRollback registers fn to run if the enclosing DirectRunner unit of work fails.
// In-memory repositories call it after each mutation; outside a unit of work it is a no-op.
func OnRollback(ctx context.Context, fn func()) {
	l, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

// DirectRunner runs fn without a database transaction; used with in-memory repositories.
// When fn fails, the undo functions registered through OnRollback run in reverse order.
type DirectRunner struct{}

func (DirectRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}
	l := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, l)); err != nil {
		l.mu.Lock()
		fns := l.fns
		l.fns = nil
		l.mu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
		return err
	}
	return nil
}
