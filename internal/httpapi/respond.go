package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Machine-readable error codes carried in the error envelope. Clients route
// on these: the two 403 causes in particular must stay distinguishable.
const (
	codeUnauthenticated        = "unauthenticated"
	codeSessionInvalid         = "session_invalid"
	codePermissionDenied       = "permission_denied"
	codeTwoFactorRequired      = "two_factor_required"
	codeTwoFactorSetupRequired = "two_factor_setup_required"
	codeNotFound               = "not_found"
	codeInvalidRequest         = "invalid_request"
	codeInternalError          = "internal_error"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

// writeDenied echoes the missing permission keys so the client can show an
// upgrade or contact-admin path.
func writeDenied(w http.ResponseWriter, r *http.Request, keys []string) {
	payload := map[string]any{
		"error":                "missing required permission",
		"code":                 codePermissionDenied,
		"required_permissions": keys,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusForbidden, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
