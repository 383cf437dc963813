package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/config"
)

// MaxPayloadSize bounds every request body the ingestion API accepts.
const MaxPayloadSize = 1 * 1024 * 1024

// RequestTimeout is the deadline withTimeout places on every request's
// context. The store's calls do not take a context, so the deadline
// does not interrupt a database call and no handler turns it into a
// timeout error; every route, /api/compact/save included, gets the
// same value.
const RequestTimeout = 5 * time.Second

func limitRequestSize(r *http.Request) {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxPayloadSize)
}

// securityHeaders strips version-revealing headers from every
// response, adapted to mux's middleware signature.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapper := &headerRemovalWriter{ResponseWriter: w}
		next.ServeHTTP(wrapper, r)
		wrapper.writeSecurityHeaders()
	})
}

type headerRemovalWriter struct {
	http.ResponseWriter
	headerWritten bool
}

func (w *headerRemovalWriter) WriteHeader(statusCode int) {
	w.writeSecurityHeaders()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *headerRemovalWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.writeSecurityHeaders()
	}
	return w.ResponseWriter.Write(b)
}

func (w *headerRemovalWriter) writeSecurityHeaders() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	h := w.ResponseWriter.Header()
	h.Del("X-Powered-By")
	h.Set("Server", "agentctx")
}

// withTimeout sets RequestTimeout as the deadline on the handler's
// context. Only code that reads r.Context() sees it; store calls and
// wake-channel writes do not.
func withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware enforces the bearer token in production mode on
// every /api route except the one that issues tokens (spec.md §6
// mode switch; §7 authentication error kind). Development mode never
// checks a token, matching the real-time surface's bare-agent-id
// acceptance for the same mode.
func authMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Mode != config.ModeProduction || r.URL.Path == "/api/auth/token" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, apierr.Authentication("missing bearer token"))
				return
			}
			if _, err := VerifyToken(cfg.AuthSecret, token); err != nil {
				respondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware applies the configured allowed-origins list (spec.md
// §6 mode switch: wildcard is rejected outright in production by
// config.Validate before the server ever starts).
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
