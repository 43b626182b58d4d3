package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codewatch.org/internal/report"
	"codewatch.org/internal/stream"
)

type violationRequest struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"user_id"`
	Description string `json:"description"`
	Type        string `json:"violation_type"`
	Location    string `json:"location"`
	Date        string `json:"date"`
	Resolved    bool   `json:"resolved"`
}

type listViolationsResponse struct {
	Items []report.Violation `json:"items"`
	AsOf  time.Time          `json:"as_of"`
}

func (a *API) handleViolationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listViolations(w, r)
	case http.MethodPost:
		a.createViolation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleViolationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/violations/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := report.ParseID(path)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.updateViolation(w, r, id)
	case http.MethodDelete:
		a.deleteViolation(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listViolations(w http.ResponseWriter, r *http.Request) {
	if !a.ensureAdmin(w, r) {
		return
	}
	items, err := a.reports.ListViolations(r.Context())
	if err != nil {
		handleReportError(w, r, err)
		return
	}
	if items == nil {
		items = []report.Violation{}
	}
	writeJSON(w, http.StatusOK, listViolationsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

// createViolation accepts anonymous submissions from the public form. Both
// the browser form encoding and JSON bodies land on the same field contract.
func (a *API) createViolation(w http.ResponseWriter, r *http.Request) {
	form, err := submissionForm(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := report.ParseSubmission(form)
	if err != nil {
		handleReportError(w, r, err)
		return
	}

	v, err := a.reports.AddViolation(r.Context(), sub)
	if err != nil {
		handleReportError(w, r, err)
		return
	}

	if a.stream != nil {
		a.stream.Publish(stream.ReportEvent{
			Kind:     stream.KindReported,
			ID:       v.ID,
			Type:     v.Type,
			Location: v.Location,
		})
	}
	a.audit(r.Context(), "report.violation.create", "violation", strconv.FormatInt(v.ID, 10), map[string]string{
		"violation_type": v.Type,
	})

	w.Header().Set("Location", "/v1/violations/"+strconv.FormatInt(v.ID, 10))
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) updateViolation(w http.ResponseWriter, r *http.Request, id int64) {
	if !a.ensureAdmin(w, r) {
		return
	}
	form, err := submissionForm(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// The resource id comes from the path; a conflicting body id is rejected.
	if raw := form.Get(report.FieldID); raw != "" {
		bodyID, err := report.ParseID(raw)
		if err != nil {
			handleReportError(w, r, err)
			return
		}
		if bodyID != id {
			writeError(w, r, http.StatusBadRequest, "body id does not match resource path")
			return
		}
	}
	upd := report.Update{
		Description: form.Get(report.FieldDescription),
		Type:        form.Get(report.FieldType),
		Location:    form.Get(report.FieldLocation),
		Resolved:    form.Get(report.FieldResolved) == "on",
	}

	v, err := a.reports.UpdateViolation(r.Context(), id, upd)
	if err != nil {
		handleReportError(w, r, err)
		return
	}

	if a.stream != nil {
		kind := stream.KindReopened
		if v.Resolved {
			kind = stream.KindResolved
		}
		a.stream.Publish(stream.ReportEvent{
			Kind:     kind,
			ID:       v.ID,
			Type:     v.Type,
			Location: v.Location,
		})
	}
	a.audit(r.Context(), "report.violation.update", "violation", strconv.FormatInt(id, 10), map[string]string{
		"resolved": strconv.FormatBool(v.Resolved),
	})

	writeJSON(w, http.StatusOK, v)
}

func (a *API) deleteViolation(w http.ResponseWriter, r *http.Request, id int64) {
	if !a.ensureAdmin(w, r) {
		return
	}
	if err := a.reports.DeleteViolation(r.Context(), id); err != nil {
		handleReportError(w, r, err)
		return
	}
	if a.stream != nil {
		a.stream.Publish(stream.ReportEvent{Kind: stream.KindDeleted, ID: id})
	}
	a.audit(r.Context(), "report.violation.delete", "violation", strconv.FormatInt(id, 10), nil)
	w.WriteHeader(http.StatusNoContent)
}

// submissionForm normalizes JSON and form-encoded bodies into one field set.
func submissionForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}

	var req violationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	form := url.Values{}
	if req.ID != "" {
		form.Set(report.FieldID, req.ID)
	}
	form.Set(report.FieldUserID, req.UserID)
	form.Set(report.FieldDescription, req.Description)
	form.Set(report.FieldType, req.Type)
	form.Set(report.FieldLocation, req.Location)
	if req.Date != "" {
		form.Set(report.FieldDate, req.Date)
	}
	if req.Resolved {
		form.Set(report.FieldResolved, "on")
	}
	return form, nil
}
