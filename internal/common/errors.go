package common

import "errors"

// Kind groups errors by how callers must react to them.
//
// Branch on Kind (via KindOf) rather than on error strings.
type Kind string

const (
	// KindConfiguration is fatal and never retried.
	KindConfiguration Kind = "configuration"
	// KindPrecondition is surfaced to the caller as a 4xx-equivalent outcome.
	KindPrecondition Kind = "precondition"
	// KindIntegrity signals storage corruption or a bug; it is logged as an anomaly.
	KindIntegrity Kind = "integrity"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Error is a classified error. Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")

	// Configuration errors.
	ErrMissingEncryptionSecret = newError(KindConfiguration, "key encryption secret is not configured")
	ErrMissingJWTSecret        = newError(KindConfiguration, "JWT secret is not configured")
	ErrMissingCaptchaSecret    = newError(KindConfiguration, "CAPTCHA secret is not configured and bypass is off")
	ErrMissingDatabaseDSN      = newError(KindConfiguration, "database DSN is not configured")

	// Issuance preconditions.
	ErrCaptchaFailed      = newError(KindPrecondition, "CAPTCHA verification failed")
	ErrSenderNotFound     = newError(KindPrecondition, "sender not found")
	ErrEmailNotVerified   = newError(KindPrecondition, "email must be verified first")
	ErrInvalidRecipient   = newError(KindPrecondition, "invalid recipient email")
	ErrInvalidContentHash = newError(KindPrecondition, "content hash must be 64 lowercase hex characters")
	ErrInvalidMassSend    = newError(KindPrecondition, "mass send requires a positive recipient count")
	ErrStampNotFound      = newError(KindPrecondition, "stamp not found")

	// Integrity errors. Messages stay generic; details go to the server log.
	ErrKeyDecryption = newError(KindIntegrity, "signing key could not be unsealed")
	ErrNoActiveKey   = newError(KindIntegrity, "no active signing key")
)
