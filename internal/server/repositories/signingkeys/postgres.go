// Package signingkeys persists Ed25519 signing keys in PostgreSQL.
package signingkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

const keyColumns = `id, public_key, private_key_encrypted, is_active, created_at, rotated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*models.SigningKey, error) {
	k := &models.SigningKey{}
	if err := row.Scan(&k.ID, &k.PublicKey, &k.PrivateKeyEncrypted, &k.IsActive, &k.CreatedAt, &k.RotatedAt); err != nil {
		return nil, err
	}
	return k, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.SigningKey, error) {
	k, err := scanKey(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) GetActive(ctx context.Context) (*models.SigningKey, error) {
	query :=
		`SELECT ` + keyColumns + ` FROM signing_keys
		 WHERE is_active
		 `
	return r.getOne(ctx, query)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SigningKey, error) {
	query :=
		`SELECT ` + keyColumns + ` FROM signing_keys
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.SigningKey, error) {
	query :=
		`SELECT ` + keyColumns + ` FROM signing_keys
		 ORDER BY created_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []models.SigningKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}

func (r *PostgresRepository) DeactivateActive(ctx context.Context, at time.Time) (int64, error) {
	query :=
		`UPDATE signing_keys SET is_active = FALSE, rotated_at = $1
		 WHERE is_active
		 `

	res, err := r.db.ExecContext(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// Insert stores key. A second active key violates the partial unique index
// on is_active; callers detect that with dbx.IsUniqueViolation.
func (r *PostgresRepository) Insert(ctx context.Context, key *models.SigningKey) error {
	query :=
		`INSERT INTO signing_keys (id, public_key, private_key_encrypted, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query, key.ID, key.PublicKey, key.PrivateKeyEncrypted, key.IsActive, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
