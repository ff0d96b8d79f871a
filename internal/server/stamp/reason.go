package stamp

// FailureReason is the closed set of verification outcomes other than
// success. The zero value means the stamp verified.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonNotFound         FailureReason = "not_found"
	ReasonRevoked          FailureReason = "revoked"
	ReasonExpired          FailureReason = "expired"
	ReasonKeyNotFound      FailureReason = "key_not_found"
	ReasonPayloadInvalid   FailureReason = "payload_invalid"
	ReasonSignatureInvalid FailureReason = "signature_invalid"
)

// Reasons lists every non-empty FailureReason in state machine order.
var Reasons = []FailureReason{
	ReasonNotFound,
	ReasonRevoked,
	ReasonExpired,
	ReasonKeyNotFound,
	ReasonPayloadInvalid,
	ReasonSignatureInvalid,
}

// IsIntegrity reports whether r indicates storage corruption or a bug
// rather than an expected outcome.
func (r FailureReason) IsIntegrity() bool {
	switch r {
	case ReasonKeyNotFound, ReasonPayloadInvalid:
		return true
	}
	return false
}

// Message is the recipient-facing explanation for r. Integrity failures
// share one generic text.
func (r FailureReason) Message() string {
	switch r {
	case ReasonNone:
		return "This stamp is valid."
	case ReasonNotFound:
		return "No stamp with this id exists."
	case ReasonRevoked:
		return "This stamp was revoked by its sender."
	case ReasonExpired:
		return "This stamp has expired."
	case ReasonKeyNotFound, ReasonPayloadInvalid:
		return "This stamp could not be verified."
	case ReasonSignatureInvalid:
		return "The stamp signature does not match; it may have been tampered with."
	}
	return "Unknown verification result."
}

// Label is r as a metrics label; success is "valid".
func (r FailureReason) Label() string {
	if r == ReasonNone {
		return "valid"
	}
	return string(r)
}

// Ptr returns nil for ReasonNone, for nullable columns.
func (r FailureReason) Ptr() *string {
	if r == ReasonNone {
		return nil
	}
	s := string(r)
	return &s
}
