package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/humanstamp/internal/common"
)

const maxBodyBytes = 64 << 10

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: code, Message: msg})
}

// readJSON decodes a bounded request body into v. Unknown fields are
// rejected.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

// statusFor maps a service error to an HTTP status and error code.
// Anything unclassified is a 500 and its text is not exposed.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, common.ErrCaptchaFailed):
		return http.StatusBadRequest, "captcha_failed", err.Error()
	case errors.Is(err, common.ErrInvalidRecipient),
		errors.Is(err, common.ErrInvalidContentHash),
		errors.Is(err, common.ErrInvalidMassSend):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, common.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified", err.Error()
	case errors.Is(err, common.ErrSenderNotFound),
		errors.Is(err, common.ErrStampNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	}
	return http.StatusInternalServerError, "internal", "internal error"
}
