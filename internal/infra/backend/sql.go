package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/fetch"
)

// SQLBackend reads rows straight from Postgres, bypassing the REST gateway.
// It is the usual secondary path: same data, different transport.
type SQLBackend struct {
	name string
	db   *sqlx.DB
}

// NewSQLBackend opens a pooled connection to the given DSN.
func NewSQLBackend(name, dsn string) (*SQLBackend, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLBackend{name: name, db: db}, nil
}

// NewSQLBackendFromDB wraps an existing connection, mainly for tests.
func NewSQLBackendFromDB(name string, db *sqlx.DB) *SQLBackend {
	return &SQLBackend{name: name, db: db}
}

// Name returns the backend identifier for logs.
func (b *SQLBackend) Name() string { return b.name }

// DB exposes the underlying pool so the control layer can run migrations.
func (b *SQLBackend) DB() *sqlx.DB { return b.db }

// Close closes the connection pool.
func (b *SQLBackend) Close() error { return b.db.Close() }

// Rows builds a fetch query for the given SELECT statement.
func (b *SQLBackend) Rows(query string, args ...any) fetch.Query[domain.Row] {
	return func(ctx context.Context) ([]domain.Row, error) {
		return b.queryRows(ctx, query, args...)
	}
}

func (b *SQLBackend) queryRows(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	rows, err := b.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		row := domain.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, classifyPgError(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return out, nil
}

// classifyPgError maps Postgres error codes onto the failure taxonomy.
func classifyPgError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		// Driver-level failures (broken pool, dial errors) are transient.
		return domain.NewError(domain.FailureTransient, "conn", err)
	}

	code := string(pqErr.Code)
	class := pqErr.Code.Class()

	switch {
	// 08xxx connection exceptions, 57P03 cannot_connect_now, 53xxx
	// insufficient resources: the server side will recover.
	case class == "08" || code == "57P03" || class == "53":
		return domain.NewError(domain.FailureTransient, code, err)
	// 42P01 undefined_table is how a stale schema cache shows up on the
	// direct path after a migration; treated as transient like the gateway's
	// schema-cache miss.
	case code == "42P01":
		return domain.NewError(domain.FailureTransient, code, err)
	case class == "28": // invalid_authorization_specification
		return domain.NewError(domain.FailureAuth, code, err)
	case class == "42" || class == "22": // syntax/access or data exception
		return domain.NewError(domain.FailureClient, code, err)
	default:
		return domain.NewError(domain.FailureTransient, code, err)
	}
}
