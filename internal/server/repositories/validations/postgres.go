// Package validations persists the append-only log of verification attempts.
package validations

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, event *models.ValidationEvent) error {
	query :=
		`INSERT INTO validation_events (stamp_id, is_valid, failure_reason, observer_ip, observer_agent)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		event.StampID, event.IsValid, event.FailureReason, event.ObserverIP, event.ObserverAgent,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountValid(ctx context.Context, stampID string) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM validation_events
		 WHERE stamp_id = $1 AND is_valid
		 `

	var n int64
	if err := r.db.QueryRowContext(ctx, query, stampID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
