package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nexusmem/memengine/internal/config"
	"github.com/nexusmem/memengine/internal/store"
)

// Open dials the primary store and configures the connection pool per
// config.PrimaryConfig.
func Open(ctx context.Context, cfg config.PrimaryConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to primary store: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolMax)
	db.SetMaxIdleConns(cfg.PoolMin)
	db.SetConnMaxIdleTime(cfg.PoolIdleTimeout)
	db.SetConnMaxLifetime(cfg.PoolKeepAlive * 60) // keep-alive is a per-probe interval; lifetime bounds total reuse

	return db, nil
}

// PoolStats reports the pool's current shape for health_check and
// metrics.SetStorageConnections.
func PoolStats(db *sqlx.DB) store.PoolStats {
	s := db.Stats()
	return store.PoolStats{
		Open:      s.OpenConnections,
		Idle:      s.Idle,
		InUse:     s.InUse,
		WaitCount: s.WaitCount,
		WaitTime:  s.WaitDuration,
	}
}

type txKey struct{}

// ContextWithTx attaches a transaction to ctx so nested calls reuse it
// instead of opening a second one, per the base-store transaction
// pattern: callers that need multi-statement atomicity wrap a call in
// WithTx and every store method dispatches through Querier(ctx).
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext extracts a transaction attached by ContextWithTx, if
// any.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx, ok
}

// querier is the subset of *sqlx.DB / *sqlx.Tx every store method
// needs; Querier(ctx) resolves to the ambient transaction when present
// and falls back to the pooled connection otherwise.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func (s *Store) querier(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txCtx := ContextWithTx(ctx, tx)
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(txCtx)
	return err
}

// nullTimePtr and ptrNullTime convert between *time.Time and
// sql.NullTime at the scan/bind boundary.
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func ptrNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func ptrNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
