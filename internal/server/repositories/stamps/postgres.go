// Package stamps persists issued stamps.
package stamps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

const stampColumns = `s.id, s.sender_id, s.user_id, s.recipient_digest, s.signature, s.signing_key_id,
		 s.client_type, s.expires_at, s.revoked, s.canonical_payload, s.content_hash,
		 s.is_mass_send, s.recipient_count, s.created_at, se.email`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStamp(row scanner) (*models.Stamp, error) {
	s := &models.Stamp{}
	err := row.Scan(&s.ID, &s.SenderID, &s.UserID, &s.RecipientDigest, &s.Signature, &s.SigningKeyID,
		&s.ClientType, &s.ExpiresAt, &s.Revoked, &s.CanonicalPayload, &s.ContentHash,
		&s.IsMassSend, &s.RecipientCount, &s.CreatedAt, &s.SenderEmail)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, stamp *models.Stamp) error {
	query :=
		`INSERT INTO stamps (id, sender_id, user_id, recipient_digest, signature, signing_key_id,
		 client_type, expires_at, canonical_payload, content_hash, is_mass_send, recipient_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		stamp.ID, stamp.SenderID, stamp.UserID, stamp.RecipientDigest, stamp.Signature, stamp.SigningKeyID,
		stamp.ClientType, stamp.ExpiresAt, stamp.CanonicalPayload, stamp.ContentHash, stamp.IsMassSend, stamp.RecipientCount,
	).Scan(&stamp.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Stamp, error) {
	query :=
		`SELECT ` + stampColumns + `
		 FROM stamps s JOIN senders se ON se.id = s.sender_id
		 WHERE s.id = $1
		 `

	s, err := scanStamp(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) SetRevoked(ctx context.Context, id, userID string) error {
	query :=
		`UPDATE stamps SET revoked = TRUE
		 WHERE id = $1 AND user_id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Stamp, error) {
	query :=
		`SELECT ` + stampColumns + `
		 FROM stamps s JOIN senders se ON se.id = s.sender_id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC
		 LIMIT $2 OFFSET $3
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Stamp
	for rows.Next() {
		s, err := scanStamp(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
