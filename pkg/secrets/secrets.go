// Package secrets generates opaque tokens and hashes credentials.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/bcrypt"

	dErrors "medshare/pkg/domain-errors"
)

// TokenBytes is the entropy of tokens produced by Generate.
const TokenBytes = 32

// Generate returns TokenBytes random bytes from crypto/rand as unpadded
// base64url, safe to embed in URLs and QR codes.
func Generate() (string, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom is Generate with an explicit entropy source.
func GenerateFrom(r io.Reader) (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the provided secret at the default cost.
func Hash(secret string) (string, error) {
	return HashWithCost(secret, bcrypt.DefaultCost)
}

// HashWithCost is Hash with an explicit bcrypt cost. Tests use bcrypt.MinCost.
func HashWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "secret is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash secret")
	}
	return string(hashed), nil
}

// Verify checks if a plaintext secret matches a bcrypt hash.
func Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid secret")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify secret")
	}
	return nil
}
