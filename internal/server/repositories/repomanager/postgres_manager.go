// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/migrations"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/senders"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/signingkeys"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/stamps"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/validations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// SigningKeys returns a signingkeys.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SigningKeys(db dbx.DBTX) signingkeys.Repository {
	return signingkeys.NewPostgresRepository(db)
}

// Senders returns a senders.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Senders(db dbx.DBTX) senders.Repository {
	return senders.NewPostgresRepository(db)
}

// Stamps returns a stamps.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Stamps(db dbx.DBTX) stamps.Repository {
	return stamps.NewPostgresRepository(db)
}

// Validations returns a validations.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Validations(db dbx.DBTX) validations.Repository {
	return validations.NewPostgresRepository(db)
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
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// OpenPostgres opens a pgx-backed *sql.DB and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
