package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle passed back into repository calls.
// Postgres implementations receive a pgx.Tx; tests may pass nil.
type Tx = any

// TransactionManager runs fn inside a database transaction, committing on
// nil error and rolling back otherwise.
type TransactionManager interface {
	WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
