package auth

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idudko/fhe-telemetry/internal/model"
)

func TestWalletAddress(t *testing.T) {
	w, err := NewWallet()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^0x[0-9a-f]{40}$`), string(w.Address()))

	derived, err := AddressOf(&w.key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), derived)

	other, err := NewWallet()
	require.NoError(t, err)
	assert.NotEqual(t, w.Address(), other.Address())
}

func TestLoadWallet(t *testing.T) {
	w, err := NewWallet()
	require.NoError(t, err)
	data, err := w.EncodePEM()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadWallet(path)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), loaded.Address())

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = LoadWallet(bad)
	assert.Error(t, err)

	_, err = LoadWallet(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	w, err := NewWallet()
	require.NoError(t, err)
	pub, err := w.PublicKey()
	require.NoError(t, err)

	challenge, exp, err := iss.IssueChallenge(w.Address())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(ChallengeTTL), exp, time.Minute)
	sig, err := w.Sign(challenge)
	require.NoError(t, err)

	token, addr, _, err := iss.Authenticate(challenge, pub, sig)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), addr)
	parsed, err := iss.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), parsed)
}

func TestAuthenticateRejects(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	owner, err := NewWallet()
	require.NoError(t, err)
	thief, err := NewWallet()
	require.NoError(t, err)
	ownerPub, err := owner.PublicKey()
	require.NoError(t, err)
	thiefPub, err := thief.PublicKey()
	require.NoError(t, err)

	// A challenge for someone else's address.
	challenge, _, err := iss.IssueChallenge(owner.Address())
	require.NoError(t, err)
	thiefSig, err := thief.Sign(challenge)
	require.NoError(t, err)
	ownerSig, err := owner.Sign(challenge)
	require.NoError(t, err)

	session, _, err := iss.IssueToken(owner.Address())
	require.NoError(t, err)
	sessionSig, err := owner.Sign(session)
	require.NoError(t, err)

	stale, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)
	stale.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := stale.IssueChallenge(owner.Address())
	require.NoError(t, err)
	oldSig, err := owner.Sign(old)
	require.NoError(t, err)

	tests := []struct {
		name      string
		challenge string
		pub       []byte
		sig       []byte
	}{
		{name: "own key for another address", challenge: challenge, pub: thiefPub, sig: thiefSig},
		{name: "owner key with foreign signature", challenge: challenge, pub: ownerPub, sig: thiefSig},
		{name: "no signature", challenge: challenge, pub: ownerPub},
		{name: "no public key", challenge: challenge, sig: ownerSig},
		{name: "session token as challenge", challenge: session, pub: ownerPub, sig: sessionSig},
		{name: "expired challenge", challenge: old, pub: ownerPub, sig: oldSig},
		{name: "no challenge", pub: ownerPub, sig: ownerSig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := iss.Authenticate(tt.challenge, tt.pub, tt.sig)
			assert.ErrorIs(t, err, model.ErrVerificationFailed)
		})
	}
}
