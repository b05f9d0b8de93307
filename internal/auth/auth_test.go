package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idudko/fhe-telemetry/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	token, exp, err := iss.IssueToken("0xABC")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	addr, err := iss.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.Address("0xABC"), addr)
}

func TestParseRejects(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)

	foreign, _, err := other.IssueToken("0xABC")
	require.NoError(t, err)

	expired, err := NewIssuer("secret", time.Minute)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.IssueToken("0xABC")
	require.NoError(t, err)
	challenge, _, err := iss.IssueChallenge("0xABC")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: stale},
		{name: "challenge used as session", token: challenge},
		{name: "empty", token: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.ParseToken(tt.token)
			assert.ErrorIs(t, err, model.ErrUnauthorized)
		})
	}
}

func TestIssuerValidation(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.Error(t, err)

	iss, err := NewIssuer("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, iss.ttl)

	_, _, err = iss.IssueToken("")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFromContext(context.Background())
	assert.False(t, ok)

	addr, ok := CallerFromContext(WithCaller(context.Background(), "0xABC"))
	assert.True(t, ok)
	assert.Equal(t, model.Address("0xABC"), addr)
}
