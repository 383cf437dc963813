package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ronylicha/agentctx-core/internal/apierr"
	"github.com/ronylicha/agentctx-core/internal/logging"
)

var log = logging.New("api")

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode response: %v", err)
	}
}

// errorBody is the structured validation/error response shape spec.md
// §7 requires: a code plus, for validation errors, per-field detail.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// respondError maps the apierr taxonomy onto HTTP status codes and
// writes the structured body. Unrecognized errors are treated as
// internal/dependency failures and never leak their cause text to
// the caller.
func respondError(w http.ResponseWriter, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		log.Error("unmapped error: %v", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Code: "internal_error", Message: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	switch ae.Kind {
	case apierr.KindValidation:
		status, code = http.StatusBadRequest, "validation_failed"
	case apierr.KindNotFound:
		status, code = http.StatusNotFound, "not_found"
	case apierr.KindConflict:
		status, code = http.StatusConflict, "conflict"
	case apierr.KindRateLimited:
		status, code = http.StatusTooManyRequests, "rate_limited"
	case apierr.KindAuthentication:
		status, code = http.StatusUnauthorized, "authentication_failed"
	case apierr.KindTimeout:
		status, code = http.StatusGatewayTimeout, "timeout"
	case apierr.KindDependency:
		status, code = http.StatusInternalServerError, "dependency_error"
		log.Error("dependency failure: %v", ae)
	}

	respondJSON(w, status, errorBody{Code: code, Message: ae.Message, Fields: ae.Fields})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierr.Field("body", "malformed JSON request body")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
