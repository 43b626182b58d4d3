package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"codewatch.org/internal/account"
	"codewatch.org/internal/audit"
	"codewatch.org/internal/auth"
	"codewatch.org/internal/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Profile   account.Profile `json:"profile"`
}

const sessionTTL = 12 * time.Hour

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	principalID, err := a.identities.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	// Credentials without a profile row still sign in; they just carry no
	// elevated role.
	profile, err := a.accounts.Find(r.Context(), principalID)
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	role := profile.Role
	if role == "" {
		role = account.RoleUser
	}

	token, err := auth.GenerateToken(principalID, []string{role}, sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	expiresAt := time.Now().UTC().Add(sessionTTL)

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"principal_id": principalID,
		"role":         role,
		"expires_at":   expiresAt.Format(time.RFC3339),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	profile.ID = principalID
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Profile:   profile,
	})
}
