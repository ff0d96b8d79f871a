package validations

import (
	"context"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

// Repository is the append-only validation log.
type Repository interface {
	Append(ctx context.Context, event *models.ValidationEvent) error
	CountValid(ctx context.Context, stampID string) (int64, error)
}
