package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

func ValidateSubmission(sub *Submission) error {
	sub.Description = strings.TrimSpace(sub.Description)
	sub.Type = strings.TrimSpace(sub.Type)
	sub.Location = strings.TrimSpace(sub.Location)
	sub.UserID = strings.TrimSpace(sub.UserID)
	if sub.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if sub.Type == "" {
		return fmt.Errorf("%w: violation_type is required", ErrInvalidInput)
	}
	return nil
}

func ValidateUpdate(upd *Update) error {
	upd.Description = strings.TrimSpace(upd.Description)
	upd.Type = strings.TrimSpace(upd.Type)
	upd.Location = strings.TrimSpace(upd.Location)
	if upd.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if upd.Type == "" {
		return fmt.Errorf("%w: violation_type is required", ErrInvalidInput)
	}
	return nil
}

// InMemory implements Service with in-process concurrency safety. Used in
// tests and when no DSN is configured; production runs against Postgres.
type InMemory struct {
	mu        sync.RWMutex
	nextID    int64
	records   map[int64]*Violation
	userCount func(ctx context.Context) (int64, error)
	now       func() time.Time
}

// InMemoryOption configures the in-memory service.
type InMemoryOption func(*InMemory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) InMemoryOption {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithUserCounter supplies the user-profile count for Stats. Without it the
// user count is reported as zero.
func WithUserCounter(fn func(ctx context.Context) (int64, error)) InMemoryOption {
	return func(s *InMemory) {
		if fn != nil {
			s.userCount = fn
		}
	}
}

// NewInMemory creates an empty violation store.
func NewInMemory(opts ...InMemoryOption) *InMemory {
	s := &InMemory{
		records: make(map[int64]*Violation),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) ListViolations(ctx context.Context) ([]Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Violation, 0, len(s.records))
	for _, v := range s.records {
		out = append(out, *v)
	}
	// Date descending, id descending as tiebreaker for same-instant rows.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (s *InMemory) AddViolation(ctx context.Context, sub Submission) (Violation, error) {
	if err := ValidateSubmission(&sub); err != nil {
		return Violation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	date := sub.Date
	if date.IsZero() {
		date = now
	}
	s.nextID++
	v := &Violation{
		ID:          s.nextID,
		UserID:      sub.UserID,
		Description: sub.Description,
		Type:        sub.Type,
		Location:    sub.Location,
		Date:        date,
		Resolved:    sub.Resolved,
		CreatedAt:   now,
	}
	s.records[v.ID] = v
	return *v, nil
}

func (s *InMemory) UpdateViolation(ctx context.Context, id int64, upd Update) (Violation, error) {
	if err := ValidateUpdate(&upd); err != nil {
		return Violation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.records[id]
	if !ok {
		return Violation{}, ErrNotFound
	}
	v.Description = upd.Description
	v.Type = upd.Type
	v.Location = upd.Location
	v.Resolved = upd.Resolved
	return *v, nil
}

func (s *InMemory) DeleteViolation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *InMemory) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := s.now().UTC().Add(-NewWindow)
	var stats Stats
	for _, v := range s.records {
		stats.Reported++
		if v.Resolved {
			stats.Confirmed++
		} else {
			stats.Pending++
		}
		if !v.Date.Before(since) {
			stats.New++
		}
	}
	if s.userCount != nil {
		n, err := s.userCount(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.Users = n
	}
	return stats, nil
}

var _ Service = (*InMemory)(nil)
