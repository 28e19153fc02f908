// Package repomanager hands out repositories bound to a DB handle and runs
// schema migrations. Services go through it so tests can swap in fakes.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/asavelyev/mediahub/internal/dbx"
	"github.com/asavelyev/mediahub/internal/server/repositories/users"
)

type RepositoryManager interface {
	// Users returns a user repository bound to db, which may be *sql.DB or
	// a transaction.
	Users(db dbx.DBTX) users.Repository

	// RunMigrations applies the embedded goose migrations.
	RunMigrations(ctx context.Context, db *sql.DB) error
}
