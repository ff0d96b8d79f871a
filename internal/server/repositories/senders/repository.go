package senders

import (
	"context"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, sender *models.Sender) (*models.Sender, error)
	GetByID(ctx context.Context, id string) (*models.Sender, error)
	// IncrementStampCount bumps the sender's issued stamp counter and returns
	// the new value.
	IncrementStampCount(ctx context.Context, id string) (int64, error)
}
