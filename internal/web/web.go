// Package web serves the HTML frontend: the public submission form, the
// login page and the admin dashboard. Pages are rendered server-side; every
// mutation is a form POST answered with a redirect so a refresh never
// replays it.
package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"codewatch.org/internal/account"
	"codewatch.org/internal/auth"
	"codewatch.org/internal/identity"
	"codewatch.org/internal/obs"
	"codewatch.org/internal/report"
	"codewatch.org/internal/stream"
)

//go:embed templates/*.html
var templateFS embed.FS

// sessionCookie must match the cookie the API login endpoint issues.
const sessionCookie = "codewatch_session"

const sessionTTL = 12 * time.Hour

// Server renders the HTML pages. It reuses the domain services behind the
// JSON API; there is no separate web-side state.
type Server struct {
	mux        *http.ServeMux
	pages      map[string]*template.Template
	reports    report.Service
	accounts   *account.Service
	identities identity.Provider
	stream     *stream.Stream
}

func New(reports report.Service, accounts *account.Service, identities identity.Provider, st *stream.Stream) (*Server, error) {
	if reports == nil || accounts == nil || identities == nil {
		return nil, errors.New("web: report, account and identity services are required")
	}
	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "report", "login", "dashboard", "violations", "users"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}

	s := &Server{
		mux:        http.NewServeMux(),
		pages:      pages,
		reports:    reports,
		accounts:   accounts,
		identities: identities,
		stream:     st,
	}

	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/report", s.handleReport)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/logout", s.handleLogout)
	s.mux.HandleFunc("/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/dashboard/violations", s.handleViolations)
	s.mux.HandleFunc("/dashboard/violations/delete", s.handleViolationDelete)
	s.mux.HandleFunc("/dashboard/users", s.handleUsers)
	s.mux.HandleFunc("/dashboard/users/delete", s.handleUserDelete)

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type pageData struct {
	Title    string
	LoggedIn bool
	Error    string
	Notice   string
	Data     any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	_, data.LoggedIn = auth.UserIDFromContext(r.Context())
	t, ok := s.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "template render failed",
			"page":  name,
			"error": err.Error(),
		})
	}
}

// requireAdmin sends anonymous visitors to the login page and rejects
// non-admin sessions outright.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return false
	}
	if !auth.HasRole(r.Context(), account.RoleAdmin) {
		http.Error(w, "admin role required", http.StatusForbidden)
		return false
	}
	return true
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.render(w, r, "home", pageData{Title: "CodeWatch"})
}

// handleReport serves the public violation-report form. No login is needed
// to submit.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data := pageData{Title: "Report a violation"}
		if r.URL.Query().Get("submitted") == "1" {
			data.Notice = "Thank you. Your report has been recorded."
		}
		s.render(w, r, "report", data)
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.render(w, r, "report", pageData{Title: "Report a violation", Error: err.Error()})
			return
		}
		sub, err := report.ParseSubmission(r.PostForm)
		if err != nil {
			s.render(w, r, "report", pageData{Title: "Report a violation", Error: userMessage(err)})
			return
		}
		v, err := s.reports.AddViolation(r.Context(), sub)
		if err != nil {
			s.render(w, r, "report", pageData{Title: "Report a violation", Error: userMessage(err)})
			return
		}
		if s.stream != nil {
			s.stream.Publish(stream.ReportEvent{
				Kind:     stream.KindReported,
				ID:       v.ID,
				Type:     v.Type,
				Location: v.Location,
			})
		}
		http.Redirect(w, r, "/report?submitted=1", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, "login", pageData{Title: "Sign in"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.render(w, r, "login", pageData{Title: "Sign in", Error: err.Error()})
			return
		}
		email := r.PostForm.Get("email")
		password := r.PostForm.Get("password")

		principalID, err := s.identities.SignIn(r.Context(), email, password)
		if err != nil {
			s.render(w, r, "login", pageData{Title: "Sign in", Error: "Invalid email or password."})
			return
		}
		role := account.RoleUser
		if p, err := s.accounts.Find(r.Context(), principalID); err == nil && p.Role != "" {
			role = p.Role
		}
		token, err := auth.GenerateToken(principalID, []string{role}, sessionTTL)
		if err != nil {
			s.render(w, r, "login", pageData{Title: "Sign in", Error: "Sign-in is unavailable right now."})
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			Expires:  time.Now().UTC().Add(sessionTTL),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type dashboardData struct {
	Stats report.Stats
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	stats, err := s.reports.Stats(r.Context())
	if err != nil {
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, "dashboard", pageData{
		Title: "Dashboard",
		Data:  dashboardData{Stats: stats},
	})
}

type violationsData struct {
	Items   []report.Violation
	Editing *report.Violation
	Users   []account.Profile
}

// handleViolations lists the records and hosts the create/edit form. The
// same form serves both: an id query parameter switches it to edit mode.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := s.reports.ListViolations(r.Context())
		if err != nil {
			http.Error(w, "listing unavailable", http.StatusInternalServerError)
			return
		}
		data := violationsData{Items: items}
		if raw := r.URL.Query().Get("id"); raw != "" {
			if id, err := report.ParseID(raw); err == nil {
				for i := range items {
					if items[i].ID == id {
						data.Editing = &items[i]
						break
					}
				}
			}
		}
		if users, err := s.accounts.List(r.Context()); err == nil {
			data.Users = users
		}
		w.Header().Set("Cache-Control", "no-store")
		s.render(w, r, "violations", pageData{Title: "Violations", Data: data})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get(report.FieldID) != "" {
			s.updateViolation(w, r)
			return
		}
		s.createViolation(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createViolation(w http.ResponseWriter, r *http.Request) {
	sub, err := report.ParseSubmission(r.PostForm)
	if err != nil {
		http.Error(w, userMessage(err), http.StatusBadRequest)
		return
	}
	v, err := s.reports.AddViolation(r.Context(), sub)
	if err != nil {
		http.Error(w, userMessage(err), http.StatusInternalServerError)
		return
	}
	if s.stream != nil {
		s.stream.Publish(stream.ReportEvent{
			Kind:     stream.KindReported,
			ID:       v.ID,
			Type:     v.Type,
			Location: v.Location,
		})
	}
	http.Redirect(w, r, "/dashboard/violations", http.StatusSeeOther)
}

func (s *Server) updateViolation(w http.ResponseWriter, r *http.Request) {
	id, upd, err := report.ParseUpdate(r.PostForm)
	if err != nil {
		http.Error(w, userMessage(err), http.StatusBadRequest)
		return
	}
	v, err := s.reports.UpdateViolation(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, userMessage(err), http.StatusInternalServerError)
		return
	}
	if s.stream != nil {
		kind := stream.KindReopened
		if v.Resolved {
			kind = stream.KindResolved
		}
		s.stream.Publish(stream.ReportEvent{Kind: kind, ID: v.ID, Type: v.Type, Location: v.Location})
	}
	http.Redirect(w, r, "/dashboard/violations", http.StatusSeeOther)
}

func (s *Server) handleViolationDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := report.ParseID(r.PostForm.Get(report.FieldID))
	if err != nil {
		http.Error(w, userMessage(err), http.StatusBadRequest)
		return
	}
	if err := s.reports.DeleteViolation(r.Context(), id); err != nil {
		if errors.Is(err, report.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	if s.stream != nil {
		s.stream.Publish(stream.ReportEvent{Kind: stream.KindDeleted, ID: id})
	}
	http.Redirect(w, r, "/dashboard/violations", http.StatusSeeOther)
}

type usersData struct {
	Items   []account.Profile
	Editing *account.Profile
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := s.accounts.List(r.Context())
		if err != nil {
			http.Error(w, "listing unavailable", http.StatusInternalServerError)
			return
		}
		data := usersData{Items: items}
		if id := r.URL.Query().Get("id"); id != "" {
			for i := range items {
				if items[i].ID == id {
					data.Editing = &items[i]
					break
				}
			}
		}
		w.Header().Set("Cache-Control", "no-store")
		s.render(w, r, "users", pageData{Title: "Users", Data: data})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := r.PostForm.Get("id")
		username := r.PostForm.Get("username")
		if id != "" {
			role := r.PostForm.Get("role")
			if _, err := s.accounts.Update(r.Context(), id, username, role); err != nil {
				status := http.StatusInternalServerError
				switch {
				case errors.Is(err, account.ErrInvalidInput):
					status = http.StatusBadRequest
				case errors.Is(err, account.ErrNotFound):
					status = http.StatusNotFound
				}
				http.Error(w, userMessage(err), status)
				return
			}
		} else {
			email := r.PostForm.Get("email")
			if _, err := s.accounts.Add(r.Context(), username, email); err != nil {
				status := http.StatusInternalServerError
				switch {
				case errors.Is(err, identity.ErrEmailTaken):
					status = http.StatusConflict
				case errors.Is(err, account.ErrInvalidInput):
					status = http.StatusBadRequest
				}
				http.Error(w, userMessage(err), status)
				return
			}
		}
		http.Redirect(w, r, "/dashboard/users", http.StatusSeeOther)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PostForm.Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/dashboard/users", http.StatusSeeOther)
}

// userMessage strips internal error prefixes before a message reaches a
// page.
func userMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []string{"report: invalid input: ", "account: invalid input: ", "report: ", "account: ", "identity: "} {
		if rest, ok := strings.CutPrefix(msg, prefix); ok {
			return rest
		}
	}
	return msg
}
