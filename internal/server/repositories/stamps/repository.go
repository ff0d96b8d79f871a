package stamps

import (
	"context"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, stamp *models.Stamp) error
	GetByID(ctx context.Context, id string) (*models.Stamp, error)
	// SetRevoked marks the stamp revoked when it belongs to userID.
	// It returns common.ErrorNotFound otherwise.
	SetRevoked(ctx context.Context, id, userID string) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Stamp, error)
}
