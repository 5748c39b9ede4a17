// Package repomanager vends repositories for a storage backend and runs
// its schema migrations.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/eventhub/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	// InTx runs fn with repositories bound to a single transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, users users.Repository) error) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
