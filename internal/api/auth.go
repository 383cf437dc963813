package api

import (
	"net/http"
	"strings"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/authtoken"
)

// GenerateToken builds a bearer token as
// base64url(payload).hex(HMAC-SHA256(secret, payload)), the exact
// wire format spec.md §4.2 names for Generate-auth-token.
func GenerateToken(secret, agentID, sessionID string) (string, error) {
	return authtoken.Generate(secret, agentID, sessionID)
}

// VerifyToken checks the HMAC signature and expiration of a bearer
// token minted by GenerateToken, mapping authtoken's sentinel errors
// onto apierr's authentication kind for handler responses.
func VerifyToken(secret, token string) (*authtoken.Payload, error) {
	payload, err := authtoken.Verify(secret, token)
	if err != nil {
		return nil, apierr.Authentication(err.Error())
	}
	return payload, nil
}

// sourceIP extracts the rate-limit key per the resolved Open Question
// in SPEC_FULL.md §9: the caller's IP, preferring a proxy-supplied
// X-Forwarded-For over RemoteAddr.
func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
