// Package verifier checks login passwords against stored bcrypt hashes.
package verifier

import (
	"context"
	"errors"
	"sync"

	"medshare/internal/auth/models"
	"medshare/internal/sentinel"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/secrets"
)

// CredentialStore looks up the stored hash for an identity.
type CredentialStore interface {
	FindByIdentity(ctx context.Context, identity string) (*models.Credential, error)
}

// PasswordVerifier implements the login credential check. Unknown identities
// and wrong passwords produce the same Unauthorized error.
type PasswordVerifier struct {
	store CredentialStore

	dummyOnce sync.Once
	dummyHash string
}

func New(store CredentialStore) *PasswordVerifier {
	return &PasswordVerifier{store: store}
}

func (v *PasswordVerifier) Verify(ctx context.Context, identity, password string) (models.Role, error) {
	cred, err := v.store.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Spend the same bcrypt work as a real comparison.
			_ = secrets.Verify(password, v.placeholderHash())
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	if err := secrets.Verify(password, cred.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", err
	}
	return cred.Role, nil
}

func (v *PasswordVerifier) placeholderHash() string {
	v.dummyOnce.Do(func() {
		v.dummyHash, _ = secrets.Hash("placeholder-password-never-issued")
	})
	return v.dummyHash
}
