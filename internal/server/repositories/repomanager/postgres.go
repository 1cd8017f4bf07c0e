package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/migrations"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/otps"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook. Every vended repository shares the
// same store timeout and logger.
type PostgresRepositoryManager struct {
	opts []dbx.Option
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db, m.opts...)
}

// Otps returns an otps.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Otps(db dbx.DBTX) otps.Repository {
	return otps.NewPostgresRepository(db, m.opts...)
}

// Sessions returns a sessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db, m.opts...)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...dbx.Option) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{opts: opts}
}
