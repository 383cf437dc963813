// Package authtoken implements the shared-secret bearer token scheme
// from spec.md §4.2/§9: base64url(payload).hex(HMAC-SHA256(secret,
// payload)). Both internal/api (Generate-auth-token, token issuance)
// and internal/hub (production-mode WebSocket auth frames) verify
// against this single implementation.
package authtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TTL is the token lifetime from issuance (spec.md §4.2).
const TTL = time.Hour

// Payload is the signed claim set carried inside a token.
type Payload struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

var (
	// ErrMalformed means the token could not be parsed into a
	// payload/signature pair.
	ErrMalformed = errors.New("malformed token")
	// ErrSignature means the HMAC signature did not match.
	ErrSignature = errors.New("token signature mismatch")
	// ErrExpired means the payload's expires_at has passed.
	ErrExpired = errors.New("token expired")
)

// Generate builds a token for agentID (and optionally sessionID),
// signed with secret.
func Generate(secret, agentID, sessionID string) (string, error) {
	now := time.Now().UTC()
	payload := Payload{
		AgentID:   agentID,
		SessionID: sessionID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(TTL).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encodedPayload := base64.URLEncoding.EncodeToString(raw)
	sig := sign(secret, raw)
	return encodedPayload + "." + sig, nil
}

// Verify checks the HMAC signature and expiration of a token minted
// by Generate.
func Verify(secret, token string) (*Payload, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrMalformed
	}

	raw, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}

	expected := sign(secret, raw)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return nil, ErrSignature
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrMalformed
	}
	if time.Now().Unix() > payload.ExpiresAt {
		return nil, ErrExpired
	}
	return &payload, nil
}

func sign(secret string, raw []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}
