package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "carepilot/pkg/domain-errors"
)

const (
	key      = "test-signing-key"
	issuer   = "practice-app"
	audience = "carepilot"
)

func TestIssueAndValidate(t *testing.T) {
	svc := New(key, issuer, audience)
	user := uuid.New()

	token, err := svc.Issue(user, "sess-1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.NotEmpty(t, claims.JTI)
}

func TestParseRejects(t *testing.T) {
	svc := New(key, issuer, audience)
	user := uuid.New()
	sign := func(t *testing.T, s *Service) string {
		t.Helper()
		token, err := s.Issue(user, "", time.Hour)
		require.NoError(t, err)
		return token
	}

	cases := []struct {
		name    string
		token   func(t *testing.T) string
		message string
	}{
		{"garbage", func(*testing.T) string { return "not-a-token" }, "invalid token"},
		{"wrong key", func(t *testing.T) string { return sign(t, New("other-key", issuer, audience)) }, "invalid token"},
		{"wrong audience", func(t *testing.T) string { return sign(t, New(key, issuer, "billing")) }, "invalid token"},
		{"wrong issuer", func(t *testing.T) string { return sign(t, New(key, "someone-else", audience)) }, "invalid token"},
		{"expired", func(t *testing.T) string {
			past := New(key, issuer, audience, WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
			return sign(t, past)
		}, "token has expired"},
		{"none algorithm", func(t *testing.T) string {
			raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: user.String()}).
				SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return raw
		}, "invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Parse(tc.token(t))
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
			assert.Equal(t, tc.message, dErrors.SafeMessage(err))
		})
	}
}

func TestLeewayToleratesSkew(t *testing.T) {
	issued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	signer := New(key, issuer, audience, WithClock(func() time.Time { return issued }))
	token, err := signer.Issue(uuid.New(), "", time.Minute)
	require.NoError(t, err)

	late := func() time.Time { return issued.Add(90 * time.Second) }
	_, err = New(key, issuer, audience, WithClock(late)).Parse(token)
	require.Error(t, err)

	_, err = New(key, issuer, audience, WithClock(late), WithLeeway(time.Minute)).Parse(token)
	require.NoError(t, err)
}

func TestSubjectFallback(t *testing.T) {
	svc := New(key, issuer, audience)
	user := uuid.NewString()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(key))
	require.NoError(t, err)

	claims, err := svc.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, user, claims.UserID)
}
