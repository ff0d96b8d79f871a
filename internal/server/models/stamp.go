package models

import "time"

// Stamp is a persisted, signed stamp record.
//
// CanonicalPayload holds the exact bytes that were signed. It is nil only
// for stamps issued before signing existed.
type Stamp struct {
	ID               string
	SenderID         string
	UserID           string
	RecipientDigest  *string
	Signature        []byte
	SigningKeyID     *string
	ClientType       string
	ExpiresAt        time.Time
	Revoked          bool
	CanonicalPayload []byte
	ContentHash      *string
	IsMassSend       bool
	RecipientCount   int
	CreatedAt        time.Time

	// SenderEmail is joined from senders on reads.
	SenderEmail string
}

// ValidationEvent is one append-only verification attempt.
type ValidationEvent struct {
	ID            int64
	StampID       string
	IsValid       bool
	FailureReason *string
	ObserverIP    string
	ObserverAgent string
	CreatedAt     time.Time
}
