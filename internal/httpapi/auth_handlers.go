package httpapi

import (
	"errors"
	"net/http"
	"time"

	"opticore.org/internal/audit"
	"opticore.org/internal/auth"
	"opticore.org/internal/obs"
	"opticore.org/internal/twofactor"
)

// record hands an event to the audit pipeline. The pipeline stamps ID,
// PHI classification and retention; handlers only describe what happened.
func (a *API) record(rec audit.Record) {
	if a.deps.Audit != nil {
		a.deps.Audit.Record(rec)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	login, err := a.deps.Auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		switch {
		case errors.Is(err, auth.ErrAccountInactive):
			reason = "account_inactive"
		case errors.Is(err, auth.ErrAccountUnverified):
			reason = "account_unverified"
		case !errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "login failed")
			return
		}
		obs.AuthFailuresTotal.WithLabelValues(reason).Inc()
		a.record(audit.Record{
			Resource:   "session",
			ResourceID: req.Email,
			Verb:       audit.VerbAuthAttempt,
			Status:     http.StatusUnauthorized,
			Error:      reason,
		})
		// One answer for every failure mode; nothing leaks which field was wrong.
		writeError(w, r, http.StatusUnauthorized, codeUnauthenticated, "invalid email or password")
		return
	}

	state, err := a.deps.TwoFactor.State(r.Context(), login.Account.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "login failed")
		return
	}
	stepUp := a.deps.Gate.Required(login.Account.Role)

	a.record(audit.Record{
		ActorID:    login.Account.ID,
		TenantID:   login.Account.TenantID,
		Resource:   "session",
		ResourceID: login.Session.ID,
		Verb:       audit.VerbAuthAttempt,
		Status:     http.StatusOK,
		Success:    true,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"token":                     login.Token,
		"expires_at":                login.Session.ExpiresAt.Format(time.RFC3339),
		"two_factor_required":       stepUp,
		"two_factor_setup_required": stepUp && state != twofactor.StateEnabled,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.session(w, r)
	if !ok {
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.deps.Auth.Revoke(r.Context(), token); err != nil && !errors.Is(err, auth.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "logout failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   rc.TenantID,
		Resource:   "session",
		ResourceID: rc.SessionID,
		Verb:       audit.VerbLogout,
		Status:     http.StatusOK,
		Success:    true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// handleLogoutAll revokes every live session for the caller, this one
// included. The next request on any of those tokens fails its lookup.
func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := a.deps.Auth.RevokeAll(r.Context(), rc.AccountID); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "logout failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   rc.TenantID,
		Resource:   "session",
		ResourceID: rc.AccountID,
		Verb:       audit.VerbLogout,
		Status:     http.StatusOK,
		Success:    true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out_all"})
}

func (a *API) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.session(w, r)
	if !ok {
		return
	}
	account, err := a.deps.AuthStore.Accounts().Find(r.Context(), rc.AccountID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "setup failed")
		return
	}
	secret, url, err := a.deps.TwoFactor.BeginSetup(r.Context(), rc.AccountID, account.Email)
	if err != nil {
		if errors.Is(err, twofactor.ErrAlreadyEnabled) {
			writeError(w, r, http.StatusConflict, codeInvalidRequest, "two-factor is already enabled")
			return
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "setup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":           secret,
		"provisioning_url": url,
	})
}

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

func (a *API) handleTwoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.session(w, r)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	backupCodes, err := a.deps.TwoFactor.ConfirmSetup(r.Context(), rc.AccountID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrInvalidCode):
			writeError(w, r, http.StatusUnauthorized, codeInvalidRequest, "invalid verification code")
		case errors.Is(err, twofactor.ErrSetupRequired), errors.Is(err, twofactor.ErrNotFound):
			writeError(w, r, http.StatusConflict, codeTwoFactorSetupRequired, "no pending two-factor setup")
		case errors.Is(err, twofactor.ErrAlreadyEnabled):
			writeError(w, r, http.StatusConflict, codeInvalidRequest, "two-factor is already enabled")
		default:
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "confirmation failed")
		}
		return
	}
	a.record(audit.Record{
		ActorID:  rc.AccountID,
		TenantID: rc.TenantID,
		Resource: "two_factor",
		Verb:     audit.VerbUpdate,
		Status:   http.StatusOK,
		Success:  true,
	})
	// Backup codes are shown exactly once; only hashes survive.
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "enabled",
		"backup_codes": backupCodes,
	})
}

// handleTwoFactorVerify performs the step-up for the current session. It is
// reachable without the step-up gate, otherwise no designated-role session
// could ever become verified.
func (a *API) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.session(w, r)
	if !ok {
		return
	}
	var req twoFactorCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if err := a.deps.TwoFactor.VerifySession(r.Context(), rc.AccountID, req.Code); err != nil {
		switch {
		case errors.Is(err, twofactor.ErrInvalidCode):
			obs.AuthFailuresTotal.WithLabelValues("two_factor_invalid").Inc()
			a.record(audit.Record{
				ActorID:    rc.AccountID,
				TenantID:   rc.TenantID,
				Resource:   "two_factor",
				ResourceID: rc.SessionID,
				Verb:       audit.VerbAuthAttempt,
				Status:     http.StatusUnauthorized,
				Error:      "invalid_code",
			})
			writeError(w, r, http.StatusUnauthorized, codeInvalidRequest, "invalid verification code")
		case errors.Is(err, twofactor.ErrSetupRequired):
			writeError(w, r, http.StatusForbidden, codeTwoFactorSetupRequired,
				"two-factor setup must be completed first")
		default:
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "verification failed")
		}
		return
	}
	if err := a.deps.Auth.MarkStepUpVerified(r.Context(), rc.SessionID); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "verification failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   rc.TenantID,
		Resource:   "two_factor",
		ResourceID: rc.SessionID,
		Verb:       audit.VerbAuthAttempt,
		Status:     http.StatusOK,
		Success:    true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "verified"})
}

// handlePermissions returns the caller's effective permission set so the UI
// can decide what to render without probing endpoints one by one.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rc, ok := a.authorize(w, r)
	if !ok {
		return
	}
	keys, err := a.deps.Perms.Effective(r.Context(), rc)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "permission lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        rc.Role,
		"plan":        rc.Plan,
		"permissions": keys,
	})
}
