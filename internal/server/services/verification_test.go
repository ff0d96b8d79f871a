package services

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/cryptox"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/stamp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testObserver = Observer{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"}

func scrape(t *testing.T, e *env) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}

func TestValidate_Valid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.issue(t, IssueRequest{})

	got, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.True(t, got.SignatureVerified)
	assert.False(t, got.Legacy)
	assert.Equal(t, stamp.ReasonNone, got.FailureReason)
	assert.Equal(t, int64(0), got.ReuseCount)
	require.NotNil(t, got.Stamp)
	assert.Equal(t, res.StampID, got.Stamp.StampID)
	assert.Equal(t, "a***@example.com", got.Stamp.Sender)
	assert.Equal(t, res.KeyID, got.Stamp.KeyID)

	again, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	assert.True(t, again.Valid)
	assert.Equal(t, int64(1), again.ReuseCount)

	events := e.repos.validations.events
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, res.StampID, ev.StampID)
		assert.True(t, ev.IsValid)
		assert.Nil(t, ev.FailureReason)
		assert.Equal(t, cryptox.ShortDigest(testObserver.IP), ev.ObserverIP)
		assert.Equal(t, cryptox.ShortDigest(testObserver.UserAgent), ev.ObserverAgent)
	}

	assert.Contains(t, scrape(t, e), `stamp_validations_total{result="valid"} 2`)
}

func TestValidate_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, id := range []string{"garbage", uuid.NewString()} {
		got, err := e.verifier.Validate(ctx, id, Observer{})
		require.NoError(t, err)
		assert.False(t, got.Valid)
		assert.Equal(t, stamp.ReasonNotFound, got.FailureReason)
		assert.Nil(t, got.Stamp)
		assert.NotEmpty(t, got.Message)
	}

	events := e.repos.validations.events
	require.Len(t, events, 2)
	assert.Equal(t, cryptox.ShortDigest("garbage"), events[0].StampID)
	assert.Equal(t, uuid.MustParse(events[1].StampID).String(), events[1].StampID)
	require.NotNil(t, events[0].FailureReason)
	assert.Equal(t, "not_found", *events[0].FailureReason)
	assert.Empty(t, events[0].ObserverIP)
}

func TestValidate_Revoked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.issue(t, IssueRequest{})
	require.NoError(t, e.stamps.Revoke(ctx, testUserID, res.StampID))

	// revoked wins over expired
	e.setNow(time.Now().UTC().Add(2 * stamp.ValidityWindow))

	got, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, stamp.ReasonRevoked, got.FailureReason)
	require.NotNil(t, got.Stamp)
	assert.True(t, got.Stamp.Revoked)
}

func TestValidate_Expired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.setNow(issued)
	res := e.issue(t, IssueRequest{})

	e.setNow(issued.Add(stamp.ValidityWindow))
	got, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	assert.True(t, got.Valid, "valid up to and including the expiry instant")

	e.setNow(issued.Add(stamp.ValidityWindow + time.Second))
	got, err = e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, stamp.ReasonExpired, got.FailureReason)
	assert.NotNil(t, got.Stamp)
}

func TestValidate_Legacy(t *testing.T) {
	e := newEnv(t)
	id := uuid.NewString()
	e.repos.stamps.stamps[id] = &models.Stamp{
		ID:             id,
		SenderID:       testSenderID,
		UserID:         testUserID,
		ClientType:     "api",
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
		RecipientCount: 1,
	}

	got, err := e.verifier.Validate(context.Background(), id, testObserver)
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.True(t, got.Legacy)
	assert.False(t, got.SignatureVerified)
	assert.NotEqual(t, stamp.ReasonNone.Message(), got.Message)
	require.NotNil(t, got.Stamp)

	assert.True(t, e.repos.validations.events[0].IsValid)
	assert.Contains(t, scrape(t, e), `stamp_validations_total{result="legacy"} 1`)
}

func TestValidate_IntegrityFailures(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(e *env, st *models.Stamp)
		want   stamp.FailureReason
	}{
		{
			name:   "no key id",
			tamper: func(e *env, st *models.Stamp) { st.SigningKeyID = nil },
			want:   stamp.ReasonKeyNotFound,
		},
		{
			name: "unknown key id",
			tamper: func(e *env, st *models.Stamp) {
				kid := "k-19700101T000000.000000000Z"
				st.SigningKeyID = &kid
			},
			want: stamp.ReasonKeyNotFound,
		},
		{
			name: "malformed public key",
			tamper: func(e *env, st *models.Stamp) {
				e.repos.keys.mu.Lock()
				e.repos.keys.keys[0].PublicKey = []byte("short")
				e.repos.keys.mu.Unlock()
			},
			want: stamp.ReasonKeyNotFound,
		},
		{
			name:   "payload not json",
			tamper: func(e *env, st *models.Stamp) { st.CanonicalPayload = []byte("{not json") },
			want:   stamp.ReasonPayloadInvalid,
		},
		{
			name: "payload with extra field",
			tamper: func(e *env, st *models.Stamp) {
				st.CanonicalPayload = append(st.CanonicalPayload[:len(st.CanonicalPayload)-1], []byte(`,"x":1}`)...)
			},
			want: stamp.ReasonPayloadInvalid,
		},
		{
			name: "payload of another stamp",
			tamper: func(e *env, st *models.Stamp) {
				p, err := stamp.Parse(st.CanonicalPayload)
				if err != nil {
					panic(err)
				}
				p.StampID = uuid.NewString()
				_, priv, err := e.keys.ActiveSigner(context.Background())
				if err != nil {
					panic(err)
				}
				st.CanonicalPayload, st.Signature, err = stamp.Sign(priv, p)
				if err != nil {
					panic(err)
				}
			},
			want: stamp.ReasonPayloadInvalid,
		},
		{
			name: "content hash column disagrees",
			tamper: func(e *env, st *models.Stamp) {
				h := strings.Repeat("b", 64)
				st.ContentHash = &h
			},
			want: stamp.ReasonPayloadInvalid,
		},
		{
			name: "recipient digest column disagrees",
			tamper: func(e *env, st *models.Stamp) {
				d := strings.Repeat("c", 64)
				st.RecipientDigest = &d
			},
			want: stamp.ReasonPayloadInvalid,
		},
		{
			name:   "expiry column disagrees",
			tamper: func(e *env, st *models.Stamp) { st.ExpiresAt = st.ExpiresAt.Add(365 * 24 * time.Hour) },
			want:   stamp.ReasonPayloadInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			res := e.issue(t, IssueRequest{})
			e.repos.stamps.mutate(res.StampID, func(st *models.Stamp) { tt.tamper(e, st) })

			got, err := e.verifier.Validate(context.Background(), res.StampID, testObserver)
			require.NoError(t, err)
			assert.False(t, got.Valid)
			assert.Equal(t, tt.want, got.FailureReason)
			assert.True(t, got.FailureReason.IsIntegrity())
			assert.Nil(t, got.Stamp)
			assert.Equal(t, tt.want.Message(), got.Message)

			require.Len(t, e.repos.validations.events, 1)
			assert.Equal(t, string(tt.want), *e.repos.validations.events[0].FailureReason)
			assert.Contains(t, scrape(t, e), `stamp_integrity_anomalies_total{reason="`+string(tt.want)+`"} 1`)
		})
	}
}

func TestValidate_SignatureInvalid(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(st *models.Stamp)
	}{
		{
			name: "nonce changed",
			tamper: func(st *models.Stamp) {
				p, err := stamp.Parse(st.CanonicalPayload)
				if err != nil {
					panic(err)
				}
				p.Nonce = stamp.NewNonce()
				st.CanonicalPayload, err = p.Canonical()
				if err != nil {
					panic(err)
				}
			},
		},
		{
			name: "recipient rebound",
			tamper: func(st *models.Stamp) {
				p, err := stamp.Parse(st.CanonicalPayload)
				if err != nil {
					panic(err)
				}
				d, _ := stamp.RecipientDigest("mallory@example.com")
				p.Recipient = d.String()
				st.CanonicalPayload, _ = p.Canonical()
			},
		},
		{
			name:   "signature bit flipped",
			tamper: func(st *models.Stamp) { st.Signature[0] ^= 0x01 },
		},
		{
			name:   "signature truncated",
			tamper: func(st *models.Stamp) { st.Signature = st.Signature[:10] },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			res := e.issue(t, IssueRequest{})
			e.repos.stamps.mutate(res.StampID, tt.tamper)

			got, err := e.verifier.Validate(context.Background(), res.StampID, testObserver)
			require.NoError(t, err)
			assert.False(t, got.Valid)
			assert.False(t, got.SignatureVerified)
			assert.Equal(t, stamp.ReasonSignatureInvalid, got.FailureReason)
			assert.NotNil(t, got.Stamp)
		})
	}
}

func TestValidate_AfterRotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	old := e.issue(t, IssueRequest{})
	_, err := e.keys.Rotate(ctx)
	require.NoError(t, err)
	fresh := e.issue(t, IssueRequest{})
	assert.NotEqual(t, old.KeyID, fresh.KeyID)

	for _, id := range []string{old.StampID, fresh.StampID} {
		got, err := e.verifier.Validate(ctx, id, testObserver)
		require.NoError(t, err)
		assert.True(t, got.Valid, id)
		assert.True(t, got.SignatureVerified, id)
	}
}

func TestValidate_StorageErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.issue(t, IssueRequest{})

	e.repos.validations.countErr = errBoom
	_, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.ErrorIs(t, err, errBoom)

	e.repos.validations.countErr = nil
	e.repos.validations.appendErr = errBoom
	_, err = e.verifier.Validate(ctx, res.StampID, testObserver)
	require.ErrorIs(t, err, errBoom)

	e.repos.validations.appendErr = nil
	e.repos.stamps.getErr = errBoom
	_, err = e.verifier.Validate(ctx, res.StampID, testObserver)
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, e.repos.validations.events)
}

func TestValidate_ForgedColumnsPastSignedExpiry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.setNow(issued)
	signed := strings.Repeat("a", 64)
	res := e.issue(t, IssueRequest{ContentHash: signed})

	forged := strings.Repeat("b", 64)
	e.repos.stamps.mutate(res.StampID, func(st *models.Stamp) {
		st.ContentHash = &forged
		st.ExpiresAt = st.ExpiresAt.Add(365 * 24 * time.Hour)
	})

	e.setNow(issued.Add(90 * 24 * time.Hour))
	got, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.False(t, got.SignatureVerified)
	assert.Equal(t, stamp.ReasonPayloadInvalid, got.FailureReason)
	assert.Nil(t, got.Stamp)
}

func TestValidate_SummaryFromSignedPayload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.setNow(issued)
	content := strings.Repeat("a", 64)
	res := e.issue(t, IssueRequest{ContentHash: content, RecipientEmail: "bob@example.com"})

	e.repos.stamps.mutate(res.StampID, func(st *models.Stamp) { st.CreatedAt = issued.Add(time.Hour) })

	got, err := e.verifier.Validate(ctx, res.StampID, testObserver)
	require.NoError(t, err)
	require.True(t, got.Valid)
	require.NotNil(t, got.Stamp)
	assert.Equal(t, issued, got.Stamp.IssuedAt)
	assert.Equal(t, issued.Add(stamp.ValidityWindow), got.Stamp.ExpiresAt.UTC())
	assert.Equal(t, content, got.Stamp.ContentHash)
	assert.True(t, got.Stamp.RecipientBound)
}
