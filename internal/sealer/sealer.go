// Package sealer implements authenticated encryption of disclosure payloads.
//
// Sealed format: nonce (12 bytes) || ciphertext || tag (16 bytes). The nonce is
// drawn fresh from the random source on every Seal call, so sealing the same
// plaintext twice never yields the same bytes.
package sealer

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	dErrors "medshare/pkg/domain-errors"
)

const (
	// NonceSize is the AES-GCM standard nonce length in bytes.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length in bytes.
	TagSize = 16
)

// SecretProvider supplies the current symmetric key. Implementations may
// block (KMS, vault); callers pass a context for that reason.
type SecretProvider interface {
	CurrentKey(ctx context.Context) ([]byte, error)
}

// AESGCM seals and opens payloads with AES-GCM.
type AESGCM struct {
	keys   SecretProvider
	random io.Reader
}

// Option configures AESGCM.
type Option func(*AESGCM)

// WithRandom overrides the nonce source. Defaults to crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(s *AESGCM) {
		if r != nil {
			s.random = r
		}
	}
}

// New constructs an AESGCM sealer reading keys from keys.
func New(keys SecretProvider, opts ...Option) *AESGCM {
	s := &AESGCM{keys: keys, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks that usable key material is configured. Call it at startup
// so a missing or malformed key keeps the service from becoming ready.
func (s *AESGCM) Validate(ctx context.Context) error {
	_, err := s.aead(ctx)
	return err
}

// Seal encrypts plaintext and returns nonce || ciphertext || tag.
func (s *AESGCM) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	aead, err := s.aead(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(s.random, out[:NonceSize]); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "failed to generate nonce")
	}
	return aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Open verifies and decrypts a sealed payload. Any tampering, truncation or
// key mismatch fails with CodeAuthenticationFailure; no partial plaintext is
// ever returned.
func (s *AESGCM) Open(ctx context.Context, sealed []byte) ([]byte, error) {
	aead, err := s.aead(ctx)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+TagSize {
		return nil, dErrors.New(dErrors.CodeAuthenticationFailure, "sealed payload is too short")
	}

	nonce, ciphertext := sealed[:NonceSize], sealed[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthenticationFailure, "sealed payload failed authentication")
	}
	return plaintext, nil
}

func (s *AESGCM) aead(ctx context.Context) (cipher.AEAD, error) {
	if s == nil || s.keys == nil {
		return nil, dErrors.New(dErrors.CodeMissingKey, "no key provider configured")
	}
	key, err := s.keys.CurrentKey(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMissingKey, "failed to load encryption key")
	}
	if len(key) == 0 {
		return nil, dErrors.New(dErrors.CodeMissingKey, "encryption key is not configured")
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidKeyLength, "encryption key must be 128, 192 or 256 bits")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidKeyLength, "failed to initialise cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "failed to initialise gcm")
	}
	return aead, nil
}

// EncodeString renders sealed bytes for transport (standard padded base64).
func EncodeString(sealed []byte) string {
	return base64.StdEncoding.EncodeToString(sealed)
}

// DecodeString parses a transport encoding produced by EncodeString.
func DecodeString(encoded string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "sealed payload is not valid base64")
	}
	return b, nil
}
