package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"codewatch.org/internal/account"
	"codewatch.org/internal/auth"
	"codewatch.org/internal/identity"
	"codewatch.org/internal/report"
	"codewatch.org/internal/stream"
)

const (
	testAdminEmail    = "admin@example.org"
	testAdminPassword = "correct-horse"
	testUserEmail     = "viewer@example.org"
	testUserPassword  = "battery-staple"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("CODEWATCH_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	idp := identity.NewInMemory()
	profiles := account.NewInMemoryProfiles()
	idp.OnDelete = profiles.Remove
	accounts, err := account.NewService(idp, profiles)
	if err != nil {
		t.Fatalf("account service: %v", err)
	}
	reports := report.NewInMemory()

	seed := func(email, password, username, role string) {
		id, err := idp.Create(context.Background(), email, password)
		if err != nil {
			t.Fatalf("seed identity %s: %v", email, err)
		}
		if err := profiles.Insert(context.Background(), account.Profile{
			ID:       id,
			Username: username,
			Email:    email,
			Role:     role,
		}); err != nil {
			t.Fatalf("seed profile %s: %v", email, err)
		}
	}
	seed(testAdminEmail, testAdminPassword, "root", account.RoleAdmin)
	seed(testUserEmail, testUserPassword, "viewer", account.RoleUser)

	api := New(ReadyProbe{}, "test", reports, accounts, idp, stream.New())
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body []byte, contentType string, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) postJSON(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("marshal body: %v", err)
	}
	return c.do(http.MethodPost, path, payload, "application/json", headers)
}

func (c *apiClient) putJSON(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("marshal body: %v", err)
	}
	return c.do(http.MethodPut, path, payload, "application/json", headers)
}

func (c *apiClient) postForm(path string, form url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, []byte(form.Encode()), "application/x-www-form-urlencoded", headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil, "", headers)
}

func (c *apiClient) delete(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodDelete, path, nil, "", headers)
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	resp := c.postJSON("/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func authHeaderFor(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestPublicSubmissionThenDashboardList(t *testing.T) {
	api := newTestAPI(t)

	// The public form posts without any credentials.
	form := url.Values{}
	form.Set("description", "free samples handed to clinic staff")
	form.Set("violation_type", "Inducement")
	form.Set("location", "Riverside Clinic")
	resp := api.postForm("/v1/violations", form, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	created := decode[report.Violation](t, resp)
	if created.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if created.Resolved {
		t.Fatal("new submissions start unresolved")
	}
	if created.Date.IsZero() {
		t.Fatal("expected submission date stamped")
	}

	token := api.login(testAdminEmail, testAdminPassword)
	resp = api.get("/v1/violations", authHeaderFor(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	listing := decode[listViolationsResponse](t, resp)
	if len(listing.Items) != 1 || listing.Items[0].ID != created.ID {
		t.Fatalf("unexpected listing: %+v", listing.Items)
	}
}

func TestViolationLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(testAdminEmail, testAdminPassword)
	headers := authHeaderFor(token)

	resp := api.postJSON("/v1/violations", map[string]any{
		"description":    "off-label claim in brochure",
		"violation_type": "Promotion",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	created := decode[report.Violation](t, resp)
	id := strconv.FormatInt(created.ID, 10)

	// Resolve it.
	resp = api.putJSON("/v1/violations/"+id, map[string]any{
		"description":    "off-label claim in brochure",
		"violation_type": "Promotion",
		"resolved":       true,
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	updated := decode[report.Violation](t, resp)
	if !updated.Resolved {
		t.Fatal("expected record resolved")
	}

	// Reopen it: resolution is two-way through explicit updates.
	resp = api.putJSON("/v1/violations/"+id, map[string]any{
		"description":    "off-label claim in brochure",
		"violation_type": "Promotion",
		"resolved":       false,
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	reopened := decode[report.Violation](t, resp)
	if reopened.Resolved {
		t.Fatal("expected record reopened")
	}

	resp = api.delete("/v1/violations/"+id, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	// A second delete reports the missing row instead of succeeding.
	resp = api.delete("/v1/violations/"+id, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on repeated delete, got %d", resp.StatusCode)
	}
}

func TestLegacyFieldNamesRejected(t *testing.T) {
	api := newTestAPI(t)

	form := url.Values{}
	form.Set("description", "gift vouchers at booth")
	form.Set("violationType", "Inducement")
	resp := api.postForm("/v1/violations", form, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "violation_type") {
		t.Fatalf("expected canonical field hint, got %q", msg)
	}
}

func TestAdminEndpointsGuarded(t *testing.T) {
	api := newTestAPI(t)

	// No credentials at all.
	resp := api.get("/v1/violations", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// Authenticated but without the admin role.
	token := api.login(testUserEmail, testUserPassword)
	for _, path := range []string{"/v1/violations", "/v1/users", "/v1/stats"} {
		resp := api.get(path, authHeaderFor(token))
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for %s, got %d", path, resp.StatusCode)
		}
	}

	// Garbage bearer token.
	resp = api.get("/v1/violations", authHeaderFor("not-a-token"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
}

func TestUserManagementFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(testAdminEmail, testAdminPassword)
	headers := authHeaderFor(token)

	resp := api.postJSON("/v1/users", map[string]any{
		"username": "inspector",
		"email":    "inspector@example.org",
	}, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	created := decode[account.Profile](t, resp)
	if created.ID == "" || created.Role != account.RoleUser {
		t.Fatalf("unexpected profile: %+v", created)
	}

	// Duplicate email conflicts.
	resp = api.postJSON("/v1/users", map[string]any{
		"username": "other",
		"email":    "inspector@example.org",
	}, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// Promote to admin.
	resp = api.putJSON("/v1/users/"+created.ID, map[string]any{
		"username": "inspector",
		"role":     account.RoleAdmin,
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	updated := decode[account.Profile](t, resp)
	if updated.Role != account.RoleAdmin {
		t.Fatalf("expected admin role, got %q", updated.Role)
	}

	// An invalid role never reaches the store.
	resp = api.putJSON("/v1/users/"+created.ID, map[string]any{
		"username": "inspector",
		"role":     "supervisor",
	}, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = api.delete("/v1/users/"+created.ID, headers)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	// The listing no longer carries the removed account.
	resp = api.get("/v1/users", headers)
	listing := decode[listUsersResponse](t, resp)
	for _, p := range listing.Items {
		if p.ID == created.ID {
			t.Fatalf("deleted user still listed: %+v", p)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t)

	resp := api.postJSON("/v1/auth/login", map[string]any{
		"email":    testAdminEmail,
		"password": "wrong",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = api.postJSON("/v1/auth/login", map[string]any{
		"email":    "nobody@example.org",
		"password": "wrong",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStatsReflectsStore(t *testing.T) {
	api := newTestAPI(t)
	token := api.login(testAdminEmail, testAdminPassword)
	headers := authHeaderFor(token)

	for i := 0; i < 3; i++ {
		resp := api.postJSON("/v1/violations", map[string]any{
			"description":    "sponsored dinner without disclosure",
			"violation_type": "Hospitality",
		}, nil)
		created := decode[report.Violation](t, resp)
		if i == 0 {
			resp := api.putJSON("/v1/violations/"+strconv.FormatInt(created.ID, 10), map[string]any{
				"description":    "sponsored dinner without disclosure",
				"violation_type": "Hospitality",
				"resolved":       true,
			}, headers)
			resp.Body.Close()
		}
	}

	resp := api.get("/v1/stats", headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected no-store, got %q", cc)
	}
	payload := decode[struct {
		Stats report.Stats `json:"stats"`
	}](t, resp)
	if payload.Stats.Reported != 3 {
		t.Fatalf("expected 3 reported, got %d", payload.Stats.Reported)
	}
	if payload.Stats.Confirmed != 1 || payload.Stats.Pending != 2 {
		t.Fatalf("unexpected split: %+v", payload.Stats)
	}
	if payload.Stats.Confirmed+payload.Stats.Pending != payload.Stats.Reported {
		t.Fatalf("resolved and pending must partition the total: %+v", payload.Stats)
	}
	if payload.Stats.New != 3 {
		t.Fatalf("fresh records count as new: %+v", payload.Stats)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %+v", body)
	}

	resp = api.get("/v1/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	info := decode[map[string]any](t, resp)
	if info["version"] != "test" {
		t.Fatalf("unexpected info body: %+v", info)
	}
}
