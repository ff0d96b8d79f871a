// Package stamp implements the signable stamp payload: its canonical byte
// form, the digests that go into it, Ed25519 signing and verification, the
// closed set of verification failure reasons and the embeddable badges.
package stamp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/common"
)

const (
	// PayloadVersion is written into every payload as "v".
	PayloadVersion = 1

	// RecipientAny stands in for the recipient digest when none was declared.
	RecipientAny = "any"
	// ContentUnbound stands in for the content digest when none was declared.
	ContentUnbound = "unbound"

	// ValidityWindow is how long a freshly issued stamp stays valid.
	ValidityWindow = 30 * 24 * time.Hour

	nonceBytes = 16
)

// Payload field names. They are the keys of the canonical JSON object.
const (
	fieldVersion   = "v"
	fieldStampID   = "sid"
	fieldUser      = "uid"
	fieldSender    = "snd"
	fieldRecipient = "rcpt"
	fieldContent   = "ch"
	fieldIssuedAt  = "iat"
	fieldExpiresAt = "exp"
	fieldNonce     = "n"
)

var (
	shortDigestRe = regexp.MustCompile(`^[0-9a-f]{16}$`)
	fullDigestRe  = regexp.MustCompile(`^[0-9a-f]{64}$`)
	nonceRe       = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// ErrPayloadInvalid is returned by Parse for bytes that are not a well-formed
// stamp payload.
var ErrPayloadInvalid = errors.New("stamp payload is invalid")

// Payload is the exact set of fields that get signed.
type Payload struct {
	Version      int
	StampID      string
	UserDigest   string
	SenderDigest string
	// Recipient is a 64-hex digest or RecipientAny.
	Recipient string
	// Content is a 64-hex digest or ContentUnbound.
	Content   string
	IssuedAt  int64
	ExpiresAt int64
	Nonce     string
}

// NewPayload builds a payload for a stamp issued at now. Empty digests are
// replaced by their sentinels and a fresh random nonce is drawn.
func NewPayload(stampID, userID, senderEmail string, recipient, content PreHashed, now time.Time) Payload {
	p := Payload{
		Version:      PayloadVersion,
		StampID:      stampID,
		UserDigest:   HashIdentifier(userID),
		SenderDigest: HashIdentifier(NormalizeEmail(senderEmail)),
		Recipient:    RecipientAny,
		Content:      ContentUnbound,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(ValidityWindow).Unix(),
		Nonce:        NewNonce(),
	}
	if !recipient.IsZero() {
		p.Recipient = recipient.String()
	}
	if !content.IsZero() {
		p.Content = content.String()
	}
	return p
}

// NewNonce returns 16 random bytes as hex.
func NewNonce() string {
	n, err := common.MakeRandHexString(nonceBytes)
	if err != nil {
		panic(err)
	}
	return n
}

func (p Payload) fields() map[string]any {
	return map[string]any{
		fieldVersion:   p.Version,
		fieldStampID:   p.StampID,
		fieldUser:      p.UserDigest,
		fieldSender:    p.SenderDigest,
		fieldRecipient: p.Recipient,
		fieldContent:   p.Content,
		fieldIssuedAt:  p.IssuedAt,
		fieldExpiresAt: p.ExpiresAt,
		fieldNonce:     p.Nonce,
	}
}

// Canonical returns the bytes that are signed for p.
func (p Payload) Canonical() ([]byte, error) {
	return Canonicalize(p.fields())
}

// ExpiresAtTime returns ExpiresAt as a UTC time.
func (p Payload) ExpiresAtTime() time.Time {
	return time.Unix(p.ExpiresAt, 0).UTC()
}

type wirePayload struct {
	Version   *int    `json:"v"`
	StampID   *string `json:"sid"`
	User      *string `json:"uid"`
	Sender    *string `json:"snd"`
	Recipient *string `json:"rcpt"`
	Content   *string `json:"ch"`
	IssuedAt  *int64  `json:"iat"`
	ExpiresAt *int64  `json:"exp"`
	Nonce     *string `json:"n"`
}

// Parse decodes canonical bytes back into a Payload. Unknown or missing
// fields, wrong types and malformed digests all yield ErrPayloadInvalid.
func Parse(b []byte) (Payload, error) {
	var w wirePayload

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if dec.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrPayloadInvalid)
	}

	if w.Version == nil || w.StampID == nil || w.User == nil || w.Sender == nil ||
		w.Recipient == nil || w.Content == nil || w.IssuedAt == nil || w.ExpiresAt == nil || w.Nonce == nil {
		return Payload{}, fmt.Errorf("%w: missing field", ErrPayloadInvalid)
	}

	p := Payload{
		Version:      *w.Version,
		StampID:      *w.StampID,
		UserDigest:   *w.User,
		SenderDigest: *w.Sender,
		Recipient:    *w.Recipient,
		Content:      *w.Content,
		IssuedAt:     *w.IssuedAt,
		ExpiresAt:    *w.ExpiresAt,
		Nonce:        *w.Nonce,
	}
	if err := p.validate(); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return p, nil
}

func (p Payload) validate() error {
	switch {
	case p.Version != PayloadVersion:
		return fmt.Errorf("unsupported version %d", p.Version)
	case p.StampID == "":
		return errors.New("empty stamp id")
	case !shortDigestRe.MatchString(p.UserDigest):
		return errors.New("bad user digest")
	case !shortDigestRe.MatchString(p.SenderDigest):
		return errors.New("bad sender digest")
	case p.Recipient != RecipientAny && !fullDigestRe.MatchString(p.Recipient):
		return errors.New("bad recipient digest")
	case p.Content != ContentUnbound && !fullDigestRe.MatchString(p.Content):
		return errors.New("bad content digest")
	case p.IssuedAt <= 0 || p.ExpiresAt <= p.IssuedAt:
		return errors.New("bad validity window")
	case !nonceRe.MatchString(p.Nonce):
		return errors.New("bad nonce")
	}
	return nil
}
