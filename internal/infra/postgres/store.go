// Package postgres implements the console store directly on PostgreSQL with
// pgx. It shares the schema and the upsert_conversation function with the
// Supabase backend.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store implements port.Store on a pgx pool.
type Store struct {
	db     querier
	logger *zap.Logger
}

// Open connects a pool to dsn and verifies it.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// New creates a store on pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return &Store{db: pool, logger: logger}
}

func newWithQuerier(db querier, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// notFound maps pgx.ErrNoRows to a nil result.
func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
