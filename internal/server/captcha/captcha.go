// Package captcha checks human-verification tokens before a stamp is issued.
package captcha

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/netx"
)

// Result is the outcome of a token check. Error holds the provider's error
// codes when the token is rejected.
type Result struct {
	Success bool
	Error   string
}

// Verifier checks a human-verification token issued to the caller.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Result, error)
}

// Bypass accepts every token. It exists for local development and tests.
type Bypass struct{}

func (Bypass) Verify(context.Context, string, string) (Result, error) {
	return Result{Success: true}, nil
}

// Turnstile verifies tokens against a Cloudflare Turnstile compatible
// siteverify endpoint (hCaptcha and reCAPTCHA speak the same form protocol).
type Turnstile struct {
	secret   string
	endpoint string
	client   *http.Client
}

// NewTurnstile returns a verifier that posts to endpoint with secret.
func NewTurnstile(secret, endpoint string, timeout time.Duration) *Turnstile {
	return &Turnstile{
		secret:   secret,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify returns Success=false without an error for rejected or empty
// tokens. Transport failures are returned as errors.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) (Result, error) {
	if strings.TrimSpace(token) == "" {
		return Result{Error: "missing-input-response"}, nil
	}

	form := url.Values{
		"secret":   {t.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	var out siteverifyResponse
	if err := netx.PostFormJSON(ctx, t.client, t.endpoint, form, &out); err != nil {
		return Result{}, err
	}
	return Result{Success: out.Success, Error: strings.Join(out.ErrorCodes, ",")}, nil
}
