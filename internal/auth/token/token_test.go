package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medshare/internal/auth/models"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, c clock.Clock) *JWTService {
	t.Helper()
	svc, err := NewJWTService(testSigningKey, "medshare", "medshare-api", WithTTL(10*time.Minute), WithClock(c))
	require.NoError(t, err)
	return svc
}

func Test_IssueAndValidate(t *testing.T) {
	c := clock.NewFake(time.Now().UTC().Truncate(time.Second))
	svc := newTestService(t, c)

	signed, expiresAt, err := svc.Issue("patient@example.com", models.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, c.Now().Add(10*time.Minute), expiresAt)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "patient@example.com", claims.Subject)
	assert.Equal(t, "PATIENT", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func Test_ValidateToken_Expired(t *testing.T) {
	c := clock.NewFake(time.Now().UTC().Truncate(time.Second))
	svc := newTestService(t, c)

	signed, _, err := svc.Issue("patient@example.com", models.RolePatient)
	require.NoError(t, err)

	c.Advance(11 * time.Minute)
	_, err = svc.ValidateToken(signed)
	require.ErrorContains(t, err, "token expired")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_Rejects(t *testing.T) {
	c := clock.NewFake(time.Now().UTC().Truncate(time.Second))
	svc := newTestService(t, c)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("invalid-token-string")
		require.ErrorContains(t, err, "invalid token")
	})

	t.Run("foreign signing key", func(t *testing.T) {
		other, err := NewJWTService("ffffffffffffffffffffffffffffffff", "medshare", "medshare-api", WithClock(c))
		require.NoError(t, err)
		signed, _, err := other.Issue("patient@example.com", models.RolePatient)
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		require.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewJWTService(testSigningKey, "medshare", "someone-else", WithClock(c))
		require.NoError(t, err)
		signed, _, err := other.Issue("patient@example.com", models.RolePatient)
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		require.Error(t, err)
	})

	t.Run("unsigned token", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "patient@example.com",
				Issuer:    "medshare",
				Audience:  []string{"medshare-api"},
				ExpiresAt: jwt.NewNumericDate(c.Now().Add(time.Minute)),
			},
		})
		signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		require.Error(t, err)
	})
}

func Test_NewJWTService_ShortKey(t *testing.T) {
	_, err := NewJWTService("short", "medshare", "medshare-api")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func Test_Issue_BlankIdentity(t *testing.T) {
	svc := newTestService(t, clock.Real{})
	_, _, err := svc.Issue("", models.RolePatient)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_MiddlewareAdapter(t *testing.T) {
	svc := newTestService(t, clock.Real{})
	signed, _, err := svc.Issue("provider@clinic.example", models.RoleProvider)
	require.NoError(t, err)

	claims, err := NewMiddlewareAdapter(svc).ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "provider@clinic.example", claims.Subject)
	assert.Equal(t, "PROVIDER", claims.Role)

	_, err = NewMiddlewareAdapter(svc).ValidateToken("nope")
	assert.Error(t, err)
}
