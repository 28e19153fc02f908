package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/asavelyev/mediahub/internal/dbx"
	"github.com/asavelyev/mediahub/internal/server/migrations"
	"github.com/asavelyev/mediahub/internal/server/repositories/users"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Open connects to postgres through the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}
