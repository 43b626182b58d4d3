package report

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestParseSubmission(t *testing.T) {
	c := qt.New(t)

	form := url.Values{}
	form.Set("description", "On shelf past expiry")
	form.Set("violation_type", "Milk Safety")
	form.Set("location", "Johannesburg")

	sub, err := ParseSubmission(form)
	c.Assert(err, qt.IsNil)
	c.Assert(sub.Description, qt.Equals, "On shelf past expiry")
	c.Assert(sub.Type, qt.Equals, "Milk Safety")
	c.Assert(sub.Location, qt.Equals, "Johannesburg")
	c.Assert(sub.Resolved, qt.IsFalse)
	c.Assert(sub.Date.IsZero(), qt.IsTrue)

	form.Set("resolved", "on")
	form.Set("date", "2025-07-10")
	sub, err = ParseSubmission(form)
	c.Assert(err, qt.IsNil)
	c.Assert(sub.Resolved, qt.IsTrue)
	c.Assert(sub.Date, qt.Equals, time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC))
}

func TestParseSubmissionValidation(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		name string
		form url.Values
	}{
		{"missing description", url.Values{"violation_type": {"Labelling"}}},
		{"missing type", url.Values{"description": {"free samples handed out"}}},
		{"blank description", url.Values{"description": {"   "}, "violation_type": {"Labelling"}}},
		{"bad date", url.Values{"description": {"x"}, "violation_type": {"y"}, "date": {"next tuesday"}}},
	}
	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			_, err := ParseSubmission(tc.form)
			c.Assert(errors.Is(err, ErrInvalidInput), qt.IsTrue, qt.Commentf("got %v", err))
		})
	}
}

func TestParseRejectsLegacyFieldNames(t *testing.T) {
	c := qt.New(t)

	form := url.Values{}
	form.Set("description", "unapproved substance on shelf")
	form.Set("violationType", "Illegal Substance")

	_, err := ParseSubmission(form)
	c.Assert(errors.Is(err, ErrInvalidInput), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, ".*violationType.*violation_type.*")

	form = url.Values{}
	form.Set("id", "3")
	form.Set("description", "d")
	form.Set("violation_type", "t")
	form.Set("employeeId", "E123")
	_, _, err = ParseUpdate(form)
	c.Assert(errors.Is(err, ErrInvalidInput), qt.IsTrue)
}

func TestParseUpdateRequiresNumericID(t *testing.T) {
	c := qt.New(t)

	form := url.Values{}
	form.Set("id", "vio_1")
	form.Set("description", "d")
	form.Set("violation_type", "t")

	_, _, err := ParseUpdate(form)
	c.Assert(errors.Is(err, ErrInvalidInput), qt.IsTrue)
}

func TestAddViolationStampsSubmissionTime(t *testing.T) {
	c := qt.New(t)

	now := time.Date(2025, 7, 12, 9, 30, 0, 0, time.UTC)
	svc := NewInMemory(WithClock(func() time.Time { return now }))

	v, err := svc.AddViolation(context.Background(), Submission{
		Description: "On shelf past expiry",
		Type:        "Milk Safety",
		Location:    "Johannesburg",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(v.Resolved, qt.IsFalse)
	c.Assert(v.Date, qt.Equals, now)
	c.Assert(v.CreatedAt, qt.Equals, now)
	c.Assert(v.ID > 0, qt.IsTrue)

	// A supplied occurrence date overrides the stamp; resolved still
	// requires the explicit marker.
	occurred := now.Add(-48 * time.Hour)
	v2, err := svc.AddViolation(context.Background(), Submission{
		Description: "poster above the formula aisle",
		Type:        "Advertising",
		Date:        occurred,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(v2.Date, qt.Equals, occurred)
	c.Assert(v2.Resolved, qt.IsFalse)
}

func TestListViolationsOrdersByDateDescending(t *testing.T) {
	c := qt.New(t)

	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	svc := NewInMemory(WithClock(func() time.Time { return clock }))

	for i := 0; i < 3; i++ {
		clock = base.AddDate(0, 0, i)
		_, err := svc.AddViolation(context.Background(), Submission{
			Description: "record",
			Type:        "Labelling",
		})
		c.Assert(err, qt.IsNil)
	}

	list, err := svc.ListViolations(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 3)
	for i := 1; i < len(list); i++ {
		c.Assert(list[i-1].Date.Before(list[i].Date), qt.IsFalse)
	}
	// Newest submission appears first.
	c.Assert(list[0].Date, qt.Equals, base.AddDate(0, 0, 2))
}

func TestUpdateViolationTransitions(t *testing.T) {
	c := qt.New(t)
	svc := NewInMemory()

	v, err := svc.AddViolation(context.Background(), Submission{
		Description: "late arrival of inspection docs",
		Type:        "Records",
	})
	c.Assert(err, qt.IsNil)

	// pending -> confirmed
	got, err := svc.UpdateViolation(context.Background(), v.ID, Update{
		Description: v.Description,
		Type:        v.Type,
		Resolved:    true,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(got.Resolved, qt.IsTrue)
	c.Assert(got.Date, qt.Equals, v.Date)

	// confirmed -> pending is permitted; not a one-way gate.
	got, err = svc.UpdateViolation(context.Background(), v.ID, Update{
		Description: v.Description,
		Type:        v.Type,
		Resolved:    false,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(got.Resolved, qt.IsFalse)

	_, err = svc.UpdateViolation(context.Background(), 9999, Update{Description: "d", Type: "t"})
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestDeleteViolationZeroRows(t *testing.T) {
	c := qt.New(t)
	svc := NewInMemory()

	err := svc.DeleteViolation(context.Background(), 42)
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)

	v, err := svc.AddViolation(context.Background(), Submission{Description: "d", Type: "t"})
	c.Assert(err, qt.IsNil)
	c.Assert(svc.DeleteViolation(context.Background(), v.ID), qt.IsNil)
	c.Assert(errors.Is(svc.DeleteViolation(context.Background(), v.ID), ErrNotFound), qt.IsTrue)
}

func TestStats(t *testing.T) {
	c := qt.New(t)

	now := time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)
	clock := now
	svc := NewInMemory(
		WithClock(func() time.Time { return clock }),
		WithUserCounter(func(context.Context) (int64, error) { return 4, nil }),
	)

	// Two fresh records, one resolved; one stale record outside the window.
	clock = now.AddDate(0, 0, -10)
	_, err := svc.AddViolation(context.Background(), Submission{Description: "old", Type: "t"})
	c.Assert(err, qt.IsNil)
	clock = now
	_, err = svc.AddViolation(context.Background(), Submission{Description: "fresh", Type: "t"})
	c.Assert(err, qt.IsNil)
	resolved, err := svc.AddViolation(context.Background(), Submission{Description: "fresh resolved", Type: "t"})
	c.Assert(err, qt.IsNil)
	_, err = svc.UpdateViolation(context.Background(), resolved.ID, Update{Description: "fresh resolved", Type: "t", Resolved: true})
	c.Assert(err, qt.IsNil)

	stats, err := svc.Stats(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(stats.Reported, qt.Equals, int64(3))
	c.Assert(stats.Confirmed, qt.Equals, int64(1))
	c.Assert(stats.Pending, qt.Equals, int64(2))
	c.Assert(stats.Confirmed+stats.Pending, qt.Equals, stats.Reported)
	c.Assert(stats.New, qt.Equals, int64(2))
	c.Assert(stats.Users, qt.Equals, int64(4))
}
