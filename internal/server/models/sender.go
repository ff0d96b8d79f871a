package models

import "time"

// Sender is an email identity owned by a user.
type Sender struct {
	ID            string
	UserID        string
	Email         string
	EmailVerified bool
	StampCount    int64
	CreatedAt     time.Time
}
