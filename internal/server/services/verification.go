package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/cryptox"
	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/humanstamp/internal/server/stamp"
	"github.com/dmitrijs2005/humanstamp/internal/timex"
	"github.com/google/uuid"
)

// Observer identifies who asked for a verification. Both values are stored
// only as short digests.
type Observer struct {
	IP        string
	UserAgent string
}

// ValidationResult is returned for every verification attempt.
type ValidationResult struct {
	Valid             bool `json:"valid"`
	SignatureVerified bool `json:"signature_verified"`
	// Legacy marks stamps issued before signing existed. They are accepted
	// but were never cryptographically verified.
	Legacy        bool                `json:"legacy"`
	FailureReason stamp.FailureReason `json:"failure_reason,omitempty"`
	Message       string              `json:"message"`
	Stamp         *StampSummary       `json:"stamp,omitempty"`
	// ReuseCount is the number of earlier successful verifications.
	ReuseCount int64 `json:"reuse_count"`
}

// VerificationService runs the stamp verification state machine and keeps
// the validation log.
type VerificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keys        *KeyService
	now         timex.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewVerificationService(db *sql.DB, m repomanager.RepositoryManager, keys *KeyService, logger logging.Logger, mt *metrics.Metrics) *VerificationService {
	return &VerificationService{
		db:          db,
		repomanager: m,
		keys:        keys,
		now:         timex.UTC,
		logger:      logger.With("module", "verification"),
		metrics:     mt,
	}
}

// Validate classifies stampID. Checks run in a fixed order and the first
// failing one decides the outcome:
//
//	not_found, revoked, expired, legacy (valid, unsigned),
//	key_not_found, payload_invalid, signature_invalid, valid.
//
// Every outcome is appended to the validation log. An error is returned only
// when storage fails.
func (s *VerificationService) Validate(ctx context.Context, stampID string, obs Observer) (*ValidationResult, error) {
	validations := s.repomanager.Validations(s.db)

	reuse, err := validations.CountValid(ctx, stampID)
	if err != nil {
		return nil, fmt.Errorf("count validations: %w", err)
	}

	result, err := s.evaluate(ctx, stampID)
	if err != nil {
		return nil, err
	}
	result.ReuseCount = reuse
	result.Message = result.FailureReason.Message()
	if result.Legacy {
		result.Message = "This stamp predates signatures; it is accepted but could not be cryptographically verified."
	}

	logged := stampID
	if _, err := uuid.Parse(stampID); err != nil {
		logged = cryptox.ShortDigest(stampID)
	}
	event := &models.ValidationEvent{
		StampID:       logged,
		IsValid:       result.Valid,
		FailureReason: result.FailureReason.Ptr(),
		ObserverIP:    hashObserver(obs.IP),
		ObserverAgent: hashObserver(obs.UserAgent),
	}
	if err := validations.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append validation: %w", err)
	}

	label := result.FailureReason.Label()
	if result.Legacy {
		label = "legacy"
	}
	s.metrics.Validation(label)
	return result, nil
}

func (s *VerificationService) evaluate(ctx context.Context, stampID string) (*ValidationResult, error) {
	if _, err := uuid.Parse(stampID); err != nil {
		return fail(stamp.ReasonNotFound, nil), nil
	}

	st, err := s.repomanager.Stamps(s.db).GetByID(ctx, stampID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fail(stamp.ReasonNotFound, nil), nil
		}
		return nil, fmt.Errorf("get stamp: %w", err)
	}
	summary := summarize(st)

	if st.Revoked {
		return fail(stamp.ReasonRevoked, &summary), nil
	}
	if s.now().After(st.ExpiresAt) {
		return fail(stamp.ReasonExpired, &summary), nil
	}
	if len(st.CanonicalPayload) == 0 {
		return &ValidationResult{Valid: true, Legacy: true, Stamp: &summary}, nil
	}

	if st.SigningKeyID == nil {
		return s.integrity(ctx, st.ID, stamp.ReasonKeyNotFound, errors.New("stamp has a payload but no key id")), nil
	}
	pub, err := s.keys.PublicKey(ctx, *st.SigningKeyID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, stamp.ErrBadPublicKey) {
			return s.integrity(ctx, st.ID, stamp.ReasonKeyNotFound, err), nil
		}
		return nil, fmt.Errorf("get public key: %w", err)
	}

	payload, err := stamp.Parse(st.CanonicalPayload)
	if err != nil {
		return s.integrity(ctx, st.ID, stamp.ReasonPayloadInvalid, err), nil
	}
	if payload.StampID != st.ID {
		return s.integrity(ctx, st.ID, stamp.ReasonPayloadInvalid, errors.New("payload belongs to another stamp")), nil
	}

	if !stamp.Verify(pub, st.CanonicalPayload, st.Signature) {
		return fail(stamp.ReasonSignatureInvalid, &summary), nil
	}
	if err := matchColumns(payload, st); err != nil {
		return s.integrity(ctx, st.ID, stamp.ReasonPayloadInvalid, err), nil
	}
	summary.IssuedAt = time.Unix(payload.IssuedAt, 0).UTC()

	return &ValidationResult{Valid: true, SignatureVerified: true, Stamp: &summary}, nil
}

// matchColumns checks that the stored columns disclosed in a summary say
// what the signed payload says.
func matchColumns(p stamp.Payload, st *models.Stamp) error {
	if p.ExpiresAt != st.ExpiresAt.Unix() {
		return errors.New("stored expiry disagrees with signed payload")
	}
	if !sentinelMatches(p.Content, stamp.ContentUnbound, st.ContentHash) {
		return errors.New("stored content hash disagrees with signed payload")
	}
	if !sentinelMatches(p.Recipient, stamp.RecipientAny, st.RecipientDigest) {
		return errors.New("stored recipient digest disagrees with signed payload")
	}
	return nil
}

func sentinelMatches(signed, sentinel string, stored *string) bool {
	if stored == nil {
		return signed == sentinel
	}
	return signed == *stored
}

// integrity reports a failure that points at corrupted storage or a bug.
// It is logged as an anomaly and nothing about the stamp is disclosed.
func (s *VerificationService) integrity(ctx context.Context, stampID string, reason stamp.FailureReason, cause error) *ValidationResult {
	s.logger.Error(ctx, "stamp integrity failure", "stamp_id", stampID, "reason", string(reason), "error", cause)
	s.metrics.IntegrityAnomaly(string(reason))
	return fail(reason, nil)
}

func fail(reason stamp.FailureReason, summary *StampSummary) *ValidationResult {
	return &ValidationResult{FailureReason: reason, Stamp: summary}
}

func hashObserver(v string) string {
	if v == "" {
		return ""
	}
	return cryptox.ShortDigest(v)
}
