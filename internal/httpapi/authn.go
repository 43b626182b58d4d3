package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"codewatch.org/internal/account"
	"codewatch.org/internal/auth"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "codewatch_session"
)

// withAuth attaches the authenticated principal to the context when a token
// is presented. Authorization stays with the handlers: public routes serve
// anonymous requests, admin routes call ensureAdmin.
//
// A malformed or expired bearer header is rejected outright. A bad session
// cookie is ignored instead, so a stale browser session cannot break the
// public submission form.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
			token, err := extractBearerToken(header)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, err.Error())
				return
			}
			claims, err := auth.ParseAndValidate(token)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
			if claims, err := auth.ParseAndValidate(c.Value); err == nil {
				ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// ensureAdmin writes the authorization failure and reports whether the
// request may proceed.
func (a *API) ensureAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !auth.HasRole(r.Context(), account.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return false
	}
	return true
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
