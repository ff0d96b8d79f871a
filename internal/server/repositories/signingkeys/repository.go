package signingkeys

import (
	"context"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

// Repository stores signing keys. Keys are never deleted.
type Repository interface {
	GetActive(ctx context.Context) (*models.SigningKey, error)
	GetByID(ctx context.Context, id string) (*models.SigningKey, error)
	List(ctx context.Context) ([]models.SigningKey, error)
	// DeactivateActive clears the active flag and stamps rotated_at, returning
	// the number of keys it touched.
	DeactivateActive(ctx context.Context, at time.Time) (int64, error)
	Insert(ctx context.Context, key *models.SigningKey) error
}
