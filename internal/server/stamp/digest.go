package stamp

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/cryptox"
)

var preHashedRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// PreHashed is a SHA-256 hex digest computed before it reaches the engine,
// such as a client-side content hash. It never holds plaintext.
type PreHashed struct {
	v string
}

// ParsePreHashed accepts exactly 64 hex characters. Surrounding whitespace
// is trimmed and upper case is folded. An empty input yields the zero value.
func ParsePreHashed(s string) (PreHashed, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PreHashed{}, nil
	}
	if !preHashedRe.MatchString(s) {
		return PreHashed{}, common.ErrInvalidContentHash
	}
	return PreHashed{v: s}, nil
}

// IsZero reports whether no digest is present.
func (h PreHashed) IsZero() bool { return h.v == "" }

func (h PreHashed) String() string { return h.v }

// Ptr returns nil for the zero value, for nullable columns.
func (h PreHashed) Ptr() *string {
	if h.v == "" {
		return nil
	}
	v := h.v
	return &v
}

// HashContent is the content-binding digest over the declared email fields:
// SHA-256(recipientLower "|" subject "|" bodyTrimmed). Callers normally
// compute it themselves; it lives here so both sides share one definition.
func HashContent(recipientLower, subject, bodyTrimmed string) PreHashed {
	return PreHashed{v: cryptox.SHA256Hex(recipientLower + "|" + subject + "|" + bodyTrimmed)}
}

// HashIdentifier is the 16-hex-char digest used for user ids and sender
// emails inside payloads.
func HashIdentifier(s string) string {
	return cryptox.ShortDigest(s)
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RecipientDigest hashes a recipient address server side. An empty address
// yields the zero PreHashed; an unparseable one is an error.
func RecipientDigest(email string) (PreHashed, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return PreHashed{}, nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return PreHashed{}, common.ErrInvalidRecipient
	}
	return PreHashed{v: cryptox.SHA256Hex(email)}, nil
}

// MaskEmail keeps the first character of the local part and the domain:
// "alice@example.com" becomes "a***@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	_, size := utf8.DecodeRuneInString(local)
	return local[:size] + "***@" + domain
}
