// Package senders persists verified sender identities.
package senders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, sender *models.Sender) (*models.Sender, error) {
	query :=
		`INSERT INTO senders (user_id, email, email_verified)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, sender.UserID, sender.Email, sender.EmailVerified).
		Scan(&sender.ID, &sender.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sender, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Sender, error) {
	query :=
		`SELECT id, user_id, email, email_verified, stamp_count, created_at FROM senders
		 WHERE id = $1
		 `

	s := &models.Sender{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.UserID, &s.Email, &s.EmailVerified, &s.StampCount, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) IncrementStampCount(ctx context.Context, id string) (int64, error) {
	query :=
		`UPDATE senders SET stamp_count = stamp_count + 1
		 WHERE id = $1
		 RETURNING stamp_count
		 `

	var count int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return count, nil
}
