package report

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Canonical form-field names. These are a verbatim wire contract shared with
// the submission form and the dashboard modals.
const (
	FieldID          = "id"
	FieldUserID      = "user_id"
	FieldDescription = "description"
	FieldType        = "violation_type"
	FieldLocation    = "location"
	FieldDate        = "date"
	FieldResolved    = "resolved"
)

// checkboxOn is the value browsers post for a checked box without an
// explicit value attribute.
const checkboxOn = "on"

// legacyFields maps prototype-era field names to their canonical
// replacements. Earlier drafts of the submission form used camelCase names
// that the store never understood; they are rejected at the edge so the two
// conventions can never coexist in one deployment.
var legacyFields = map[string]string{
	"employeeId":       FieldUserID,
	"reportedByUserId": FieldUserID,
	"violationType":    FieldType,
}

func rejectLegacyFields(form url.Values) error {
	for legacy, canonical := range legacyFields {
		if _, ok := form[legacy]; ok {
			return fmt.Errorf("%w: field %s is not supported, use %s", ErrInvalidInput, legacy, canonical)
		}
	}
	return nil
}

// ParseSubmission decodes a posted field-set into a Submission. The date
// field, when present and parseable, records when the violation occurred;
// otherwise the store stamps the submission time. Resolved is derived from
// the checkbox marker and defaults to false.
func ParseSubmission(form url.Values) (Submission, error) {
	if err := rejectLegacyFields(form); err != nil {
		return Submission{}, err
	}
	sub := Submission{
		UserID:      form.Get(FieldUserID),
		Description: form.Get(FieldDescription),
		Type:        form.Get(FieldType),
		Location:    form.Get(FieldLocation),
		Resolved:    form.Get(FieldResolved) == checkboxOn,
	}
	if raw := strings.TrimSpace(form.Get(FieldDate)); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return Submission{}, fmt.Errorf("%w: date must be RFC 3339 or YYYY-MM-DD", ErrInvalidInput)
		}
		sub.Date = d
	}
	if err := ValidateSubmission(&sub); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// ParseUpdate decodes a posted field-set into a record id and an Update.
// The id must be numeric; date and reporting-user fields are ignored even
// if present.
func ParseUpdate(form url.Values) (int64, Update, error) {
	if err := rejectLegacyFields(form); err != nil {
		return 0, Update{}, err
	}
	id, err := ParseID(form.Get(FieldID))
	if err != nil {
		return 0, Update{}, err
	}
	upd := Update{
		Description: form.Get(FieldDescription),
		Type:        form.Get(FieldType),
		Location:    form.Get(FieldLocation),
		Resolved:    form.Get(FieldResolved) == checkboxOn,
	}
	if err := ValidateUpdate(&upd); err != nil {
		return 0, Update{}, err
	}
	return id, upd, nil
}

// ParseID coerces a record identifier to its numeric form.
func ParseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", ErrInvalidInput)
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
