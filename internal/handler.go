package internal

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

var (
	PersistenceKeyContextKey contextKey = "persistence-key"
	RequestSourceContextKey  contextKey = "request-source"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// WithPersistenceKey marks the context with the persistence key the current operation syncs to
func WithPersistenceKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, PersistenceKeyContextKey, key)
}

// WithRequestSource marks the context with the collaborator that triggered the operation (e.g. "toolbar", "canvas")
func WithRequestSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, RequestSourceContextKey, source)
}
