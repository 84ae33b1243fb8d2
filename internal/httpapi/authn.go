package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"opticore.org/internal/auth"
	"opticore.org/internal/obs"
	"opticore.org/internal/perm"
	"opticore.org/internal/twofactor"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the bearer token to an immutable RequestContext before
// any handler runs. Validation is a fresh store lookup on every request;
// nothing about a previously seen token is trusted.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
			writeError(w, r, http.StatusUnauthorized, codeUnauthenticated, err.Error())
			return
		}

		rc, err := a.deps.Auth.Validate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrSessionInvalid):
				obs.AuthFailuresTotal.WithLabelValues("session_invalid").Inc()
				writeError(w, r, http.StatusUnauthorized, codeSessionInvalid, "session is expired or no longer valid")
			case errors.Is(err, auth.ErrNoTenantAssociation):
				obs.AuthFailuresTotal.WithLabelValues("no_tenant").Inc()
				writeError(w, r, http.StatusUnauthorized, codeSessionInvalid, "account has no tenant association")
			default:
				writeError(w, r, http.StatusInternalServerError, codeInternalError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWith(r.Context(), rc)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize runs the two enforcement gates every protected route shares:
// step-up first, then the permission engine. It writes the error response
// itself and reports whether the handler may proceed.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, keys ...string) (auth.RequestContext, bool) {
	rc, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthenticated, "not authenticated")
		return auth.RequestContext{}, false
	}

	if err := a.deps.Gate.Check(r.Context(), rc); err != nil {
		switch {
		case errors.Is(err, twofactor.ErrSetupRequired):
			writeError(w, r, http.StatusForbidden, codeTwoFactorSetupRequired,
				"two-factor setup must be completed for this role")
		case errors.Is(err, twofactor.ErrStepUpRequired):
			writeError(w, r, http.StatusForbidden, codeTwoFactorRequired,
				"two-factor verification is required for this session")
		default:
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "authorization error")
		}
		return auth.RequestContext{}, false
	}

	if len(keys) > 0 {
		if err := a.deps.Perms.Require(r.Context(), rc, keys...); err != nil {
			var denied *perm.DeniedError
			if errors.As(err, &denied) {
				writeDenied(w, r, denied.RequiredKeys)
			} else {
				writeError(w, r, http.StatusInternalServerError, codeInternalError, "authorization error")
			}
			return auth.RequestContext{}, false
		}
	}
	return rc, true
}

// session returns the RequestContext without running the step-up and
// permission gates. Only the 2FA endpoints use it: an enrolled but
// unverified session must be able to reach /v1/auth/2fa/verify.
func (a *API) session(w http.ResponseWriter, r *http.Request) (auth.RequestContext, bool) {
	rc, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthenticated, "not authenticated")
		return auth.RequestContext{}, false
	}
	return rc, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
