package service

import (
	"testing"
	"time"

	"github.com/durantgrace/phoneotp/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(&config.JWTConfig{SecretKey: "short"}, quietLogger())
	assert.Error(t, err)
}

func TestVerificationTokenRoundTrip(t *testing.T) {
	svc, err := NewJWTService(&config.JWTConfig{SecretKey: testJWTSecret, VerificationExpiry: time.Minute}, quietLogger())
	require.NoError(t, err)

	token, err := svc.IssueVerificationToken(testPhone)
	require.NoError(t, err)
	assert.EqualValues(t, 60, token.ExpiresIn)

	claims, err := svc.VerifyToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, testPhone, claims.Phone)
	assert.Equal(t, testPhone, claims.Subject)
	assert.Equal(t, TokenTypeVerification, claims.Type)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyTokenRejects(t *testing.T) {
	svc, err := NewJWTService(&config.JWTConfig{SecretKey: testJWTSecret, VerificationExpiry: time.Minute}, quietLogger())
	require.NoError(t, err)

	other, err := NewJWTService(&config.JWTConfig{SecretKey: "fedcba9876543210fedcba9876543210", VerificationExpiry: time.Minute}, quietLogger())
	require.NoError(t, err)
	foreign, err := other.IssueVerificationToken(testPhone)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Phone: testPhone,
		Type:  TokenTypeVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Phone: testPhone,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	badPhone, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Phone: "12345",
		Type:  TokenTypeVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":     "not.a.token",
		"foreign key": foreign.Token,
		"expired":     expired,
		"wrong type":  wrongType,
		"bad phone":   badPhone,
		"empty":       "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.VerifyToken(token)
			assert.Error(t, err)
		})
	}
}
