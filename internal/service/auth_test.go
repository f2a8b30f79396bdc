package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saasplatform/backend/internal/domain"
)

const testSecret = "0123456789abcdef0123"

func TestIssueAndVerify(t *testing.T) {
	auth := NewAuthService(testSecret)

	token, err := auth.IssueToken("ops-1", "ops@example.com", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := auth.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, &domain.JWTClaims{Sub: "ops-1", Email: "ops@example.com", Role: domain.RoleAdmin}, claims)
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewAuthService(testSecret).IssueToken("ops-1", "", "user", time.Hour)
	require.NoError(t, err)

	_, err = NewAuthService("another-secret-value").VerifyToken(token)
	assert.Equal(t, 401, appCode(t, err))
}

func TestVerify_Expired(t *testing.T) {
	auth := NewAuthService(testSecret)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }
	token, err := auth.IssueToken("ops-1", "", "user", time.Minute)
	require.NoError(t, err)

	auth.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = auth.VerifyToken(token)
	assert.Equal(t, 401, appCode(t, err))
}

func TestVerify_RejectsNonHMAC(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ops-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewAuthService(testSecret).VerifyToken(signed)
	assert.Equal(t, 401, appCode(t, err))
}

func TestVerify_RequiresSubjectAndExpiry(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	auth := NewAuthService(testSecret)

	_, err := auth.VerifyToken(sign(jwt.MapClaims{"sub": "ops-1"}))
	assert.Error(t, err, "a token without exp must be rejected")

	_, err = auth.VerifyToken(sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}))
	assert.Error(t, err, "a token without sub must be rejected")
}

func TestIssueToken_Arguments(t *testing.T) {
	auth := NewAuthService(testSecret)
	_, err := auth.IssueToken("", "", "", time.Hour)
	assert.Error(t, err)
	_, err = auth.IssueToken("ops-1", "", "", 0)
	assert.Error(t, err)
}
