package repository

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Querier is implemented by *pgxpool.Pool, pgx.Tx and pgxmock
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations
type Repository struct {
	q  Querier
	sb squirrel.StatementBuilderType
}

// NewRepository creates a new repository
func NewRepository(q Querier) *Repository {
	return &Repository{
		q:  q,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
