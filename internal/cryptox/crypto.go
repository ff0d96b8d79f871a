// Package cryptox holds the symmetric primitives used to keep signing keys
// sealed at rest, plus the digest and encoding helpers shared by the engine.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12

	sealedVersion = "v1"
)

var (
	ErrEmptySecret     = errors.New("empty secret")
	ErrMalformedSealed = errors.New("malformed sealed value")
	ErrOpen            = errors.New("cannot open sealed value")
)

// DeriveKey stretches an operator-provided secret into an AES-256 key with
// HKDF-SHA-256. info separates keys derived for different purposes.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with AES-GCM under key using a fresh random nonce.
//
// The result is text: "v1.<base64url nonce>.<base64url ciphertext||tag>".
func Seal(key, plaintext []byte) (string, error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return strings.Join([]string{
		sealedVersion,
		EncodeBase64URL(nonce),
		EncodeBase64URL(ciphertext),
	}, "."), nil
}

// Open reverses Seal. Any failure, including a wrong key, is reported as
// ErrOpen or ErrMalformedSealed and no plaintext is returned.
func Open(key []byte, sealed string) ([]byte, error) {
	parts := strings.Split(sealed, ".")
	if len(parts) != 3 || parts[0] != sealedVersion {
		return nil, ErrMalformedSealed
	}
	nonce, err := DecodeBase64URL(parts[1])
	if err != nil || len(nonce) != NonceSize {
		return nil, ErrMalformedSealed
	}
	ciphertext, err := DecodeBase64URL(parts[2])
	if err != nil {
		return nil, ErrMalformedSealed
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

// SHA256Hex returns the lowercase hex SHA-256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortDigest is the first 16 hex characters of SHA256Hex(s). It identifies
// a value without making it recoverable.
func ShortDigest(s string) string {
	return SHA256Hex(s)[:16]
}

// EncodeBase64URL encodes b as unpadded URL-safe base64.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64URL accepts URL-safe base64 with or without padding.
func DecodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
