package db

import (
	"context"

	"github.com/rotisserie/eris"
)

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Used where a read-modify-write must be a single logical
// unit, such as the goal progress recompute.
func WithTx(ctx context.Context, pool Pool, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}
