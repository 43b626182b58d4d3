package report

import (
	"context"
	"errors"
	"time"
)

// Violation is one reported marketing-code violation. The id is assigned by
// the store and never supplied by clients. Optional columns (user_id,
// location) may be absent in older rows; consumers must tolerate that.
type Violation struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	Description string    `json:"description"`
	Type        string    `json:"violation_type"`
	Location    string    `json:"location,omitempty"`
	Date        time.Time `json:"date"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submission is the input for a new violation record. A zero Date means the
// record is stamped with the submission time at insert.
type Submission struct {
	UserID      string
	Description string
	Type        string
	Location    string
	Date        time.Time
	Resolved    bool
}

// Update carries the mutable fields of an existing record. Date and the
// reporting-user reference are never revised through updates.
type Update struct {
	Description string
	Type        string
	Location    string
	Resolved    bool
}

// Stats is the derived dashboard projection. Never persisted; recomputed
// from the store on every read.
type Stats struct {
	Reported  int64 `json:"reported_count"`
	Confirmed int64 `json:"confirmed_count"`
	Pending   int64 `json:"pending_count"`
	New       int64 `json:"new_count"`
	Users     int64 `json:"user_count"`
}

// NewWindow is the trailing window a record counts as "new" in.
const NewWindow = 7 * 24 * time.Hour

var (
	ErrNotFound     = errors.New("report: not found")
	ErrInvalidInput = errors.New("report: invalid input")
)

// Service defines violation-record operations.
type Service interface {
	ListViolations(ctx context.Context) ([]Violation, error)
	AddViolation(ctx context.Context, sub Submission) (Violation, error)
	UpdateViolation(ctx context.Context, id int64, upd Update) (Violation, error)
	DeleteViolation(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
}
