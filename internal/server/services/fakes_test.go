package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/captcha"
	"github.com/dmitrijs2005/humanstamp/internal/server/config"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/senders"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/signingkeys"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/stamps"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/validations"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// --- in-memory repositories ---

type fakeKeys struct {
	mu   sync.Mutex
	keys []models.SigningKey

	getActiveErr error
	insertErr    error
	deactErr     error
	insertCalls  int
}

func (f *fakeKeys) GetActive(ctx context.Context) (*models.SigningKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getActiveErr != nil {
		return nil, f.getActiveErr
	}
	for i := range f.keys {
		if f.keys[i].IsActive {
			k := f.keys[i]
			return &k, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeKeys) GetByID(ctx context.Context, id string) (*models.SigningKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.keys {
		if f.keys[i].ID == id {
			k := f.keys[i]
			return &k, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeKeys) List(ctx context.Context) ([]models.SigningKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.SigningKey(nil), f.keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeKeys) DeactivateActive(ctx context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deactErr != nil {
		return 0, f.deactErr
	}
	var n int64
	for i := range f.keys {
		if f.keys[i].IsActive {
			f.keys[i].IsActive = false
			t := at
			f.keys[i].RotatedAt = &t
			n++
		}
	}
	return n, nil
}

func (f *fakeKeys) Insert(ctx context.Context, key *models.SigningKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	if key.IsActive {
		for _, k := range f.keys {
			if k.IsActive {
				return fmt.Errorf("db error: %w", &pgconn.PgError{Code: "23505"})
			}
		}
	}
	f.keys = append(f.keys, *key)
	return nil
}

func (f *fakeKeys) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.keys {
		if k.IsActive {
			n++
		}
	}
	return n
}

type fakeSenders struct {
	mu      sync.Mutex
	senders map[string]*models.Sender

	getErr error
	incErr error
}

func (f *fakeSenders) Create(ctx context.Context, s *models.Sender) (*models.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.senders[s.ID] = &cp
	return s, nil
}

func (f *fakeSenders) GetByID(ctx context.Context, id string) (*models.Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.senders[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSenders) IncrementStampCount(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incErr != nil {
		return 0, f.incErr
	}
	s, ok := f.senders[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	s.StampCount++
	return s.StampCount, nil
}

type fakeStamps struct {
	mu       sync.Mutex
	stamps   map[string]*models.Stamp
	senders  *fakeSenders
	order    []string
	createEr error
	getErr   error
}

func (f *fakeStamps) Create(ctx context.Context, st *models.Stamp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createEr != nil {
		return f.createEr
	}
	st.CreatedAt = time.Now().UTC()
	cp := *st
	cp.CanonicalPayload = append([]byte(nil), st.CanonicalPayload...)
	f.stamps[st.ID] = &cp
	f.order = append(f.order, st.ID)
	return nil
}

func (f *fakeStamps) GetByID(ctx context.Context, id string) (*models.Stamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	st, ok := f.stamps[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *st
	cp.CanonicalPayload = append([]byte(nil), st.CanonicalPayload...)
	if len(st.CanonicalPayload) == 0 {
		cp.CanonicalPayload = nil
	}
	if sender, err := f.senders.GetByID(ctx, st.SenderID); err == nil {
		cp.SenderEmail = sender.Email
	}
	return &cp, nil
}

func (f *fakeStamps) SetRevoked(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stamps[id]
	if !ok || st.UserID != userID {
		return common.ErrorNotFound
	}
	st.Revoked = true
	return nil
}

func (f *fakeStamps) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Stamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Stamp
	for i := len(f.order) - 1; i >= 0; i-- {
		st := f.stamps[f.order[i]]
		if st.UserID == userID {
			out = append(out, *st)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mutate edits a stored stamp in place, simulating storage tampering.
func (f *fakeStamps) mutate(id string, fn func(*models.Stamp)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.stamps[id])
}

type fakeValidations struct {
	mu        sync.Mutex
	events    []models.ValidationEvent
	appendErr error
	countErr  error
}

func (f *fakeValidations) Append(ctx context.Context, ev *models.ValidationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	ev.ID = int64(len(f.events) + 1)
	ev.CreatedAt = time.Now().UTC()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeValidations) CountValid(ctx context.Context, stampID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, ev := range f.events {
		if ev.StampID == stampID && ev.IsValid {
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct {
	keys        *fakeKeys
	senders     *fakeSenders
	stamps      *fakeStamps
	validations *fakeValidations
}

func newFakeRepoManager() *fakeRepoManager {
	snd := &fakeSenders{senders: map[string]*models.Sender{}}
	return &fakeRepoManager{
		keys:        &fakeKeys{},
		senders:     snd,
		stamps:      &fakeStamps{stamps: map[string]*models.Stamp{}, senders: snd},
		validations: &fakeValidations{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }
func (m *fakeRepoManager) SigningKeys(db dbx.DBTX) signingkeys.Repository { return m.keys }
func (m *fakeRepoManager) Senders(db dbx.DBTX) senders.Repository         { return m.senders }
func (m *fakeRepoManager) Stamps(db dbx.DBTX) stamps.Repository           { return m.stamps }
func (m *fakeRepoManager) Validations(db dbx.DBTX) validations.Repository { return m.validations }

// --- fixtures ---

const (
	testUserID   = "user-1"
	testSenderID = "6f1c8a52-3d1b-4d8e-9a57-0c2b7f3e9a10"
)

type stubCaptcha struct {
	result captcha.Result
	err    error
	calls  int
}

func (c *stubCaptcha) Verify(ctx context.Context, token, ip string) (captcha.Result, error) {
	c.calls++
	return c.result, c.err
}

type env struct {
	db       *sql.DB
	repos    *fakeRepoManager
	cfg      *config.Config
	keys     *KeyService
	stamps   *StampService
	verifier *VerificationService
	captcha  *stubCaptcha
	metrics  *metrics.Metrics
}

// newSQLiteDB opens a private in-memory database. The fakes ignore it; it
// only gives dbx.WithTx a real transaction to begin and commit.
func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.KeyEncryptionSecret = "test-encryption-secret"
	cfg.PublicBaseURL = "https://stamp.example/"

	db := newSQLiteDB(t)
	repos := newFakeRepoManager()
	repos.senders.senders[testSenderID] = &models.Sender{
		ID: testSenderID, UserID: testUserID, Email: "alice@example.com", EmailVerified: true,
	}

	mt := metrics.New()
	keys, err := NewKeyService(db, repos, cfg, logging.Nop{}, mt)
	require.NoError(t, err)

	cv := &stubCaptcha{result: captcha.Result{Success: true}}
	return &env{
		db:       db,
		repos:    repos,
		cfg:      cfg,
		keys:     keys,
		stamps:   NewStampService(db, repos, keys, cv, cfg, logging.Nop{}, mt),
		verifier: NewVerificationService(db, repos, keys, logging.Nop{}, mt),
		captcha:  cv,
		metrics:  mt,
	}
}

func (e *env) issue(t *testing.T, req IssueRequest) *IssueResult {
	t.Helper()
	if req.SenderID == "" {
		req.SenderID = testSenderID
	}
	if req.UserID == "" {
		req.UserID = testUserID
	}
	if req.CaptchaToken == "" {
		req.CaptchaToken = "token"
	}
	res, err := e.stamps.Issue(context.Background(), req)
	require.NoError(t, err)
	return res
}

// setNow pins the clock of every service.
func (e *env) setNow(t time.Time) {
	clock := func() time.Time { return t }
	e.keys.now = clock
	e.stamps.now = clock
	e.verifier.now = clock
}

var errBoom = errors.New("boom")
