package services

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/cryptox"
	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/logging"
	"github.com/dmitrijs2005/humanstamp/internal/server/config"
	"github.com/dmitrijs2005/humanstamp/internal/server/metrics"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/humanstamp/internal/server/stamp"
	"github.com/dmitrijs2005/humanstamp/internal/timex"
	gocache "github.com/patrickmn/go-cache"
)

const (
	// sealInfo separates the signing-key sealing key from anything else
	// derived from the same secret.
	sealInfo = "humanstamp/signing-key-seal/v1"

	keyIDLayout = "20060102T150405.000000000Z"

	algorithmEd25519 = "Ed25519"
)

// KeyService owns the signing key lifecycle: it creates the first key on
// demand, rotates atomically, and unseals keys for signing. Unsealed signers
// and decoded public keys are cached by key id.
type KeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sealKey     []byte
	cache       *gocache.Cache
	now         timex.Clock
	logger      logging.Logger
	metrics     *metrics.Metrics
}

// NewKeyService fails with common.ErrMissingEncryptionSecret when no
// encryption secret is configured.
func NewKeyService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger, mt *metrics.Metrics) (*KeyService, error) {
	if cfg.KeyEncryptionSecret == "" {
		return nil, common.ErrMissingEncryptionSecret
	}
	sealKey, err := cryptox.DeriveKey([]byte(cfg.KeyEncryptionSecret), sealInfo)
	if err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}

	ttl := cfg.KeyCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &KeyService{
		db:          db,
		repomanager: m,
		sealKey:     sealKey,
		cache:       gocache.New(ttl, 2*ttl),
		now:         timex.UTC,
		logger:      logger.With("module", "keys"),
		metrics:     mt,
	}, nil
}

// NewKeyID derives a sortable key id from its creation time.
func NewKeyID(t time.Time) string {
	return "k-" + t.UTC().Format(keyIDLayout)
}

func (s *KeyService) newKey() (*models.SigningKey, error) {
	seed := common.GenerateRandByteArray(ed25519.SeedSize)
	defer common.WipeByteArray(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	defer common.WipeByteArray(priv)
	pub := priv.Public().(ed25519.PublicKey)

	sealed, err := cryptox.Seal(s.sealKey, priv)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}

	now := s.now()
	return &models.SigningKey{
		ID:                  NewKeyID(now),
		PublicKey:           pub,
		PrivateKeyEncrypted: sealed,
		IsActive:            true,
		CreatedAt:           now,
	}, nil
}

// EnsureActiveKey returns the active key, creating and persisting one when
// none exists. Concurrent first calls converge on a single key through the
// unique index on the active flag.
func (s *KeyService) EnsureActiveKey(ctx context.Context) (*models.SigningKey, error) {
	repo := s.repomanager.SigningKeys(s.db)

	key, err := repo.GetActive(ctx)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("get active key: %w", err)
	}

	key, err = s.newKey()
	if err != nil {
		return nil, err
	}
	if err := repo.Insert(ctx, key); err != nil {
		if dbx.IsUniqueViolation(err) {
			s.logger.Info(ctx, "active key created concurrently, using it")
			key, err := repo.GetActive(ctx)
			if errors.Is(err, common.ErrorNotFound) {
				s.logger.Error(ctx, "active key vanished after a concurrent insert")
				return nil, common.ErrNoActiveKey
			}
			return key, err
		}
		return nil, fmt.Errorf("insert key: %w", err)
	}

	s.metrics.KeyRotated()
	s.logger.Info(ctx, "created initial signing key", "key_id", key.ID)
	return key, nil
}

// Rotate creates a new active key and deactivates the previous one in a
// single transaction. Stamps signed by the old key stay verifiable.
func (s *KeyService) Rotate(ctx context.Context) (*models.SigningKey, error) {
	key, err := s.newKey()
	if err != nil {
		return nil, err
	}

	var deactivated int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.SigningKeys(tx)

		n, err := repo.DeactivateActive(ctx, key.CreatedAt)
		if err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		deactivated = n
		if err := repo.Insert(ctx, key); err != nil {
			return fmt.Errorf("insert key: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.KeyRotated()
	s.logger.Info(ctx, "rotated signing key", "key_id", key.ID, "deactivated", deactivated)
	return key, nil
}

// ActiveSigner returns the active key id and its unsealed private key.
func (s *KeyService) ActiveSigner(ctx context.Context) (string, ed25519.PrivateKey, error) {
	key, err := s.EnsureActiveKey(ctx)
	if err != nil {
		return "", nil, err
	}

	cacheKey := "signer:" + key.ID
	if v, ok := s.cache.Get(cacheKey); ok {
		return key.ID, v.(ed25519.PrivateKey), nil
	}

	priv, err := s.unseal(ctx, key)
	if err != nil {
		return "", nil, err
	}
	s.cache.SetDefault(cacheKey, priv)
	return key.ID, priv, nil
}

func (s *KeyService) unseal(ctx context.Context, key *models.SigningKey) (ed25519.PrivateKey, error) {
	raw, err := cryptox.Open(s.sealKey, key.PrivateKeyEncrypted)
	if err != nil {
		s.logger.Error(ctx, "cannot unseal signing key", "key_id", key.ID, "error", err)
		return nil, common.ErrKeyDecryption
	}
	if len(raw) != ed25519.PrivateKeySize {
		common.WipeByteArray(raw)
		s.logger.Error(ctx, "unsealed signing key has wrong size", "key_id", key.ID)
		return nil, common.ErrKeyDecryption
	}

	priv := ed25519.PrivateKey(raw)
	if pub, ok := priv.Public().(ed25519.PublicKey); !ok || !pub.Equal(ed25519.PublicKey(key.PublicKey)) {
		common.WipeByteArray(raw)
		s.logger.Error(ctx, "unsealed signing key does not match its public key", "key_id", key.ID)
		return nil, common.ErrKeyDecryption
	}
	return priv, nil
}

// PublicKey returns the public key recorded under keyID, whether or not it
// is still active. Unknown ids yield common.ErrorNotFound.
func (s *KeyService) PublicKey(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	cacheKey := "pub:" + keyID
	if v, ok := s.cache.Get(cacheKey); ok {
		return v.(ed25519.PublicKey), nil
	}

	key, err := s.repomanager.SigningKeys(s.db).GetByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if len(key.PublicKey) != ed25519.PublicKeySize {
		return nil, stamp.ErrBadPublicKey
	}

	pub := ed25519.PublicKey(key.PublicKey)
	s.cache.SetDefault(cacheKey, pub)
	return pub, nil
}

// PublicKeys lists every key ever used, oldest first, for transparency
// publishing. Private material is never included.
func (s *KeyService) PublicKeys(ctx context.Context) ([]models.PublicKeyInfo, error) {
	keys, err := s.repomanager.SigningKeys(s.db).List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.PublicKeyInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.PublicKeyInfo{
			KeyID:     k.ID,
			PublicKey: stamp.EncodeKey(k.PublicKey),
			Algorithm: algorithmEd25519,
			IsActive:  k.IsActive,
			CreatedAt: k.CreatedAt,
			RotatedAt: k.RotatedAt,
		})
	}
	return out, nil
}
