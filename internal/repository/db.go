package repository

import (
	"context"
	"errors"

	"dinnerparty-backend/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

// notFound maps pgx.ErrNoRows to the not-found sentinel so callers can
// tell a missing row from a store failure.
func notFound(entity string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity).With(err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
