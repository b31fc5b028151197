package social

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateManager(ttl time.Duration) *EncryptedStateManager {
	return NewEncryptedStateManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("fedcba9876543210fedcba9876543210"),
		ttl,
	)
}

func TestStateManager_EncryptDecrypt(t *testing.T) {
	sm := newTestStateManager(10 * time.Minute)

	state := &OAuthState{
		Provider:     "google",
		RedirectURL:  "/dashboard",
		CodeVerifier: "test-verifier",
	}

	encoded, err := sm.Encode(state)
	require.NoError(t, err)

	decoded, err := sm.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, state.Provider, decoded.Provider)
	assert.Equal(t, state.RedirectURL, decoded.RedirectURL)
	assert.Equal(t, state.CodeVerifier, decoded.CodeVerifier)
	assert.NotEmpty(t, decoded.Nonce)
}

func TestStateManager_ExpiredState(t *testing.T) {
	sm := newTestStateManager(-1 * time.Minute)

	state := &OAuthState{Provider: "google"}
	encoded, err := sm.Encode(state)
	require.NoError(t, err)

	_, err = sm.Decode(encoded)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateManager_TamperedState(t *testing.T) {
	sm := newTestStateManager(10 * time.Minute)

	encoded, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// flip a bit in the ciphertext so the HMAC no longer matches
	raw[len(raw)-1] ^= 0x01
	tampered := base64.URLEncoding.EncodeToString(raw)

	_, err = sm.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateManager_UnknownVersion(t *testing.T) {
	sm := newTestStateManager(10 * time.Minute)

	encoded, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(encoded)
	require.NoError(t, err)

	raw[0] ^= 0xff
	relabeled := base64.URLEncoding.EncodeToString(raw)

	_, err = sm.Decode(relabeled)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateManager_WrongKeys(t *testing.T) {
	sm := newTestStateManager(10 * time.Minute)
	other := NewEncryptedStateManager(
		[]byte("abcdef0123456789abcdef0123456789"),
		[]byte("0123456789fedcba0123456789fedcba"),
		10*time.Minute,
	)

	encoded, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	_, err = other.Decode(encoded)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateManager_TruncatedToken(t *testing.T) {
	sm := newTestStateManager(10 * time.Minute)

	_, err := sm.Decode(base64.URLEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCodeChallenge(t *testing.T) {
	verifier, err := generateCodeVerifier()
	require.NoError(t, err)
	require.NotEmpty(t, verifier)

	challenge := computeCodeChallenge(verifier)
	assert.NotEmpty(t, challenge)
	assert.NotEqual(t, verifier, challenge)
	assert.Equal(t, challenge, computeCodeChallenge(verifier))
}
