package httpapi

import (
	"net/http"
	"strings"
	"time"

	"codewatch.org/internal/account"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type updateUserRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type listUsersResponse struct {
	Items []account.Profile `json:"items"`
	AsOf  time.Time         `json:"as_of"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getUser(w, r, path)
	case http.MethodPut:
		a.updateUser(w, r, path)
	case http.MethodDelete:
		a.deleteUser(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if !a.ensureAdmin(w, r) {
		return
	}
	items, err := a.accounts.List(r.Context())
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	if items == nil {
		items = []account.Profile{}
	}
	writeJSON(w, http.StatusOK, listUsersResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if !a.ensureAdmin(w, r) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.accounts.Add(r.Context(), req.Username, req.Email)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	a.audit(r.Context(), "account.user.create", "user", p.ID, map[string]string{
		"email": p.Email,
	})
	w.Header().Set("Location", "/v1/users/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensureAdmin(w, r) {
		return
	}
	p, err := a.accounts.Find(r.Context(), id)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensureAdmin(w, r) {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.accounts.Update(r.Context(), id, req.Username, req.Role)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	a.audit(r.Context(), "account.user.update", "user", id, map[string]string{
		"role": p.Role,
	})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensureAdmin(w, r) {
		return
	}
	if err := a.accounts.Delete(r.Context(), id); err != nil {
		handleAccountError(w, r, err)
		return
	}
	a.audit(r.Context(), "account.user.delete", "user", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
