package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when an account or ticket id does not resolve.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a check-and-set write loses to a concurrent update.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrPendingTicketExists is returned when a second pending ticket would be created for an account and type.
	ErrPendingTicketExists = errors.New("pending ticket already exists")
	// ErrTicketNotPending is returned when resolving a ticket that is already terminal.
	ErrTicketNotPending = errors.New("ticket is not pending")
)

// TxRunner executes fn as a single unit of work. Implementations that cannot
// roll back run fn directly; callers must verify the outcome on failure.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type pgTxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner returns a TxRunner backed by Postgres transactions. Repositories
// built on the same pool join the transaction carried in ctx.
func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return &pgTxRunner{pool: pool}
}

func (r *pgTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// validID reports whether id can address a uuid primary key. Anything else
// cannot exist and is reported as ErrNotFound instead of a driver error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
