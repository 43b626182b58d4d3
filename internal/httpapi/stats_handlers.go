package httpapi

import (
	"net/http"
	"time"
)

// handleStats serves the dashboard aggregates. The projection is recomputed
// on every request; responses carry no-store so intermediaries never serve a
// stale count.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}

	stats, err := a.reports.Stats(r.Context())
	if err != nil {
		handleReportError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": stats,
		"as_of": time.Now().UTC(),
	})
}
