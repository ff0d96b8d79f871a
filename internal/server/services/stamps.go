// Package services contains the server-side business logic: the signing key
// lifecycle, stamp issuance and revocation, and stamp verification.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/captcha"
	"github.com/dmitrijs2005/humanstamp/internal/server/config"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/humanstamp/internal/server/stamp"
	"github.com/dmitrijs2005/humanstamp/internal/timex"
	"github.com/google/uuid"
)

const (
	defaultClientType = "api"
	maxClientTypeLen  = 32

	DefaultListLimit = 50
	MaxListLimit     = 200
)

// IssueRequest carries everything the issuer needs. RecipientEmail and
// ContentHash are optional; ContentHash is the caller's SHA-256 hex digest.
type IssueRequest struct {
	SenderID       string
	UserID         string
	RecipientEmail string
	ContentHash    string
	CaptchaToken   string
	ClientType     string
	CallerIP       string
	MassSend       *MassSendInfo
}

// MassSendInfo marks a stamp meant for many recipients.
type MassSendInfo struct {
	RecipientCount int
}

// IssueResult is what the sender embeds in the outgoing email.
type IssueResult struct {
	StampID   string    `json:"stamp_id"`
	VerifyURL string    `json:"verify_url"`
	Signature string    `json:"signature"`
	KeyID     string    `json:"key_id"`
	ExpiresAt time.Time `json:"expires_at"`
	HTMLBadge string    `json:"html_badge"`
	TextBadge string    `json:"text_badge"`
}

// StampService issues, revokes and lists stamps.
type StampService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        *KeyService
	captcha     captcha.Verifier
	baseURL     string
	now         timex.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewStampService(db *sql.DB, m repomanager.RepositoryManager, keys *KeyService, cv captcha.Verifier, cfg *config.Config, logger logging.Logger, mt *metrics.Metrics) *StampService {
	return &StampService{
		db:          db,
		repomanager: m,
		keys:        keys,
		captcha:     cv,
		baseURL:     strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:         timex.UTC,
		logger:      logger.With("module", "stamps"),
		metrics:     mt,
	}
}

// VerifyURL is the public verification link for stampID.
func (s *StampService) VerifyURL(stampID string) string {
	return s.baseURL + "/verify/" + stampID
}

func (s *StampService) reject(ctx context.Context, reason string, err error) error {
	s.metrics.IssueRejected(reason)
	s.logger.Info(ctx, "stamp issuance rejected", "reason", reason)
	return err
}

// Issue checks, in order, the human-verification token, sender ownership
// and the sender's verified email, then signs and persists a new stamp.
// Either the stamp and the sender counter are both written or neither is.
func (s *StampService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	res, err := s.captcha.Verify(ctx, req.CaptchaToken, req.CallerIP)
	if err != nil {
		s.logger.Warn(ctx, "captcha verifier unavailable", "error", err)
		return nil, s.reject(ctx, "captcha", common.ErrCaptchaFailed)
	}
	if !res.Success {
		return nil, s.reject(ctx, "captcha", common.ErrCaptchaFailed)
	}

	sender, err := s.loadSender(ctx, req.SenderID, req.UserID)
	if err != nil {
		if errors.Is(err, common.ErrSenderNotFound) {
			return nil, s.reject(ctx, "sender", err)
		}
		return nil, err
	}
	if !sender.EmailVerified {
		return nil, s.reject(ctx, "unverified", common.ErrEmailNotVerified)
	}

	recipient, err := stamp.RecipientDigest(req.RecipientEmail)
	if err != nil {
		return nil, s.reject(ctx, "recipient", err)
	}
	content, err := stamp.ParsePreHashed(req.ContentHash)
	if err != nil {
		return nil, s.reject(ctx, "content_hash", err)
	}
	recipientCount := 1
	if req.MassSend != nil {
		if req.MassSend.RecipientCount < 1 {
			return nil, s.reject(ctx, "mass_send", common.ErrInvalidMassSend)
		}
		recipientCount = req.MassSend.RecipientCount
	}

	keyID, priv, err := s.keys.ActiveSigner(ctx)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	stampID := uuid.NewString()
	payload := stamp.NewPayload(stampID, req.UserID, sender.Email, recipient, content, s.now())
	canonical, sig, err := stamp.Sign(priv, payload)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	record := &models.Stamp{
		ID:               stampID,
		SenderID:         sender.ID,
		UserID:           req.UserID,
		RecipientDigest:  recipient.Ptr(),
		Signature:        sig,
		SigningKeyID:     &keyID,
		ClientType:       normalizeClientType(req.ClientType),
		ExpiresAt:        payload.ExpiresAtTime(),
		CanonicalPayload: canonical,
		ContentHash:      content.Ptr(),
		IsMassSend:       req.MassSend != nil,
		RecipientCount:   recipientCount,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Stamps(tx).Create(ctx, record); err != nil {
			return fmt.Errorf("create stamp: %w", err)
		}
		if _, err := s.repomanager.Senders(tx).IncrementStampCount(ctx, sender.ID); err != nil {
			return fmt.Errorf("increment stamp count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StampIssued()
	s.logger.Info(ctx, "stamp issued", "stamp_id", stampID, "key_id", keyID, "client_type", record.ClientType)

	verifyURL := s.VerifyURL(stampID)
	return &IssueResult{
		StampID:   stampID,
		VerifyURL: verifyURL,
		Signature: stamp.EncodeKey(sig),
		KeyID:     keyID,
		ExpiresAt: record.ExpiresAt,
		HTMLBadge: stamp.HTMLBadge(verifyURL, record.ExpiresAt),
		TextBadge: stamp.TextBadge(verifyURL),
	}, nil
}

func (s *StampService) loadSender(ctx context.Context, senderID, userID string) (*models.Sender, error) {
	if _, err := uuid.Parse(senderID); err != nil {
		return nil, common.ErrSenderNotFound
	}
	sender, err := s.repomanager.Senders(s.db).GetByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSenderNotFound
		}
		return nil, fmt.Errorf("get sender: %w", err)
	}
	if sender.UserID != userID {
		return nil, common.ErrSenderNotFound
	}
	return sender, nil
}

func normalizeClientType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return defaultClientType
	}
	if len(ct) > maxClientTypeLen {
		ct = ct[:maxClientTypeLen]
	}
	return ct
}

// Revoke permanently revokes a stamp owned by userID. Stamps of other users
// are reported as not found.
func (s *StampService) Revoke(ctx context.Context, userID, stampID string) error {
	if _, err := uuid.Parse(stampID); err != nil {
		return common.ErrStampNotFound
	}
	if err := s.repomanager.Stamps(s.db).SetRevoked(ctx, stampID, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrStampNotFound
		}
		return fmt.Errorf("revoke: %w", err)
	}
	s.logger.Info(ctx, "stamp revoked", "stamp_id", stampID)
	return nil
}

// List returns the caller's stamps, newest first.
func (s *StampService) List(ctx context.Context, userID string, limit, offset int) ([]StampSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.repomanager.Stamps(s.db).ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list stamps: %w", err)
	}

	out := make([]StampSummary, 0, len(rows))
	for i := range rows {
		out = append(out, summarize(&rows[i]))
	}
	return out, nil
}
