package stamp

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/humanstamp/internal/cryptox"
)

var (
	ErrBadPrivateKey = errors.New("invalid ed25519 private key")
	ErrBadPublicKey  = errors.New("invalid ed25519 public key")
)

// Sign canonicalizes p and signs the result. It returns the exact bytes that
// were signed together with the raw signature.
func Sign(priv ed25519.PrivateKey, p Payload) (canonical, signature []byte, err error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, nil, ErrBadPrivateKey
	}
	canonical, err = p.Canonical()
	if err != nil {
		return nil, nil, fmt.Errorf("canonicalize: %w", err)
	}
	return canonical, ed25519.Sign(priv, canonical), nil
}

// Verify checks signature over canonical with pub.
func Verify(pub ed25519.PublicKey, canonical, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, canonical, signature)
}

// EncodeKey encodes key material or a signature as URL-safe base64.
func EncodeKey(b []byte) string {
	return cryptox.EncodeBase64URL(b)
}

// DecodePublicKey decodes a URL-safe base64 Ed25519 public key.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := cryptox.DecodeBase64URL(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, ErrBadPublicKey
	}
	return ed25519.PublicKey(b), nil
}
