package models

import (
	"strings"
	"time"

	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/validation"
)

// Role separates data holders from the clinicians that scan their sessions.
type Role string

const (
	RolePatient  Role = "PATIENT"
	RoleProvider Role = "PROVIDER"
)

func (r Role) IsValid() bool {
	return r == RolePatient || r == RoleProvider
}

// Credential is a stored login secret. PasswordHash is a bcrypt hash; the
// plaintext never leaves the login request.
type Credential struct {
	Identity     string
	PasswordHash string
	Role         Role
}

// NormalizeIdentity lower-cases and trims an identity so lookups, lockout
// tracking and audit entries agree on one spelling.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

type LoginRequest struct {
	Identity string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

func (r *LoginRequest) Normalize() {
	r.Identity = NormalizeIdentity(r.Identity)
}

func (r *LoginRequest) Validate() error {
	if r.Identity == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email and password required")
	}
	return validation.Validate(r)
}

// LoginResult is returned after a successful credential check.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Identity    string
	Role        Role
}
