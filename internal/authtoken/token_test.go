package authtoken

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	token, err := Generate("super-secret-value-at-least-32-bytes", "agent-1", "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := Verify("super-secret-value-at-least-32-bytes", token)
	require.NoError(t, err)
	require.Equal(t, "agent-1", payload.AgentID)
	require.Equal(t, "session-1", payload.SessionID)
	require.InDelta(t, time.Now().Add(TTL).Unix(), payload.ExpiresAt, 2)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Generate("secret-one-is-at-least-32-bytes!", "agent-1", "")
	require.NoError(t, err)

	_, err = Verify("secret-two-is-at-least-32-bytes!", token)
	require.ErrorIs(t, err, ErrSignature)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	_, err := Verify("any-secret", "not-a-token")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Verify("any-secret", "not!base64.deadbeef")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	secret := "secret-value-padded-to-32-bytes"
	payload := Payload{
		AgentID:   "agent-1",
		IssuedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}
	token := mustSign(t, secret, payload)

	_, err := Verify(secret, token)
	require.ErrorIs(t, err, ErrExpired)
}

func mustSign(t *testing.T, secret string, payload Payload) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.URLEncoding.EncodeToString(raw) + "." + sign(secret, raw)
}
