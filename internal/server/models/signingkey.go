// Package models defines server-side data models persisted in the database.
package models

import "time"

// SigningKey is one Ed25519 key pair. Keys are never deleted; rotation only
// clears IsActive and sets RotatedAt.
type SigningKey struct {
	ID        string
	PublicKey []byte
	// PrivateKeyEncrypted is the sealed private key (see cryptox.Seal).
	PrivateKeyEncrypted string
	IsActive            bool
	CreatedAt           time.Time
	RotatedAt           *time.Time
}

// PublicKeyInfo is the transparency view of a SigningKey.
type PublicKeyInfo struct {
	KeyID     string     `json:"key_id"`
	PublicKey string     `json:"public_key"`
	Algorithm string     `json:"algorithm"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
}
