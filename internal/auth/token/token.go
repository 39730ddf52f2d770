// Package token issues and validates the HS256 access tokens returned by login.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medshare/internal/auth/models"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = 15 * time.Minute

// minSigningKeyLength matches the HS256 output size.
const minSigningKeyLength = 32

// AccessTokenClaims represents the JWT claims for our access tokens.
type AccessTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Option func(*JWTService)

func WithTTL(ttl time.Duration) Option {
	return func(s *JWTService) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *JWTService) {
		if c != nil {
			s.clock = c
		}
	}
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
	clock      clock.Clock
}

func NewJWTService(signingKey, issuer, audience string, opts ...Option) (*JWTService, error) {
	if len(signingKey) < minSigningKeyLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "jwt signing key must be at least 32 bytes")
	}
	s := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   DefaultTTL,
		clock:      clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs an access token for identity. It returns the token and its
// expiry.
func (s *JWTService) Issue(identity string, role models.Role) (string, time.Time, error) {
	if identity == "" {
		return "", time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token id")
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.tokenTTL)

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        hex.EncodeToString(b),
		},
	})

	signed, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, expiresAt, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
