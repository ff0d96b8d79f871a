package services

import (
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/stamp"
)

// StampSummary is the part of a stamp that is safe to show to anyone
// holding its id.
type StampSummary struct {
	StampID        string    `json:"stamp_id"`
	Sender         string    `json:"sender"`
	ClientType     string    `json:"client_type"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Revoked        bool      `json:"revoked"`
	RecipientBound bool      `json:"recipient_bound"`
	ContentBound   bool      `json:"content_bound"`
	ContentHash    string    `json:"content_hash,omitempty"`
	IsMassSend     bool      `json:"is_mass_send"`
	RecipientCount int       `json:"recipient_count"`
	KeyID          string    `json:"key_id,omitempty"`
}

func summarize(st *models.Stamp) StampSummary {
	sum := StampSummary{
		StampID:        st.ID,
		Sender:         stamp.MaskEmail(st.SenderEmail),
		ClientType:     st.ClientType,
		IssuedAt:       st.CreatedAt,
		ExpiresAt:      st.ExpiresAt,
		Revoked:        st.Revoked,
		RecipientBound: st.RecipientDigest != nil,
		ContentBound:   st.ContentHash != nil,
		IsMassSend:     st.IsMassSend,
		RecipientCount: st.RecipientCount,
	}
	if st.ContentHash != nil {
		sum.ContentHash = *st.ContentHash
	}
	if st.SigningKeyID != nil {
		sum.KeyID = *st.SigningKeyID
	}
	return sum
}
