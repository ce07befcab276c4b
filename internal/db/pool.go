// Package db provides shared database helpers: the pool abstraction the
// stores are written against and a transaction wrapper.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx aliases pgx.Tx so store code outside this package does not import pgx
// directly for transaction plumbing.
type Tx = pgx.Tx

// Pool is the subset of pgxpool.Pool the stores use. pgxmock's pool
// implements the same shape, which is what makes the postgres store unit
// testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}
