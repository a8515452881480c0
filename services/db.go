package services

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the unit-of-work handle threaded through engine calls. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so an operation can join a caller's
// transaction or run against the pool directly. Services that need
// atomicity open their own transaction when the caller passes nil.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
