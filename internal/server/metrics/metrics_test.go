package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()

	m.StampIssued()
	m.StampIssued()
	m.IssueRejected("captcha")
	m.Validation("valid")
	m.Validation("revoked")
	m.Validation("revoked")
	m.KeyRotated()
	m.IntegrityAnomaly("key_not_found")

	text := scrape(t, m)
	assert.Contains(t, text, "stamps_issued_total 2")
	assert.Contains(t, text, `stamp_issue_rejected_total{reason="captcha"} 1`)
	assert.Contains(t, text, `stamp_validations_total{result="valid"} 1`)
	assert.Contains(t, text, `stamp_validations_total{result="revoked"} 2`)
	assert.Contains(t, text, "signing_key_rotations_total 1")
	assert.Contains(t, text, `stamp_integrity_anomalies_total{reason="key_not_found"} 1`)
}

func TestNilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StampIssued()
		m.IssueRejected("x")
		m.Validation("valid")
		m.KeyRotated()
		m.IntegrityAnomaly("x")
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.StampIssued()
	m.ObserveHTTP(http.MethodGet, "/api/v1/verify/{id}", http.StatusOK, 5*time.Millisecond)

	text := scrape(t, m)
	assert.True(t, strings.Contains(text, "stamps_issued_total 1"))
	assert.Contains(t, text, `http_requests_total{method="GET",route="/api/v1/verify/{id}",status="200"} 1`)
	assert.Contains(t, text, "http_request_duration_seconds_count")
	assert.Contains(t, text, "go_goroutines")
}
