package account

import (
	"context"
	"sync"
)

// InMemoryProfiles implements ProfileStore for tests and DSN-less runs.
type InMemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	order    []string

	// FailInsert forces the next Insert to fail; used to exercise the
	// compensating delete path.
	FailInsert error
}

func NewInMemoryProfiles() *InMemoryProfiles {
	return &InMemoryProfiles{profiles: make(map[string]Profile)}
}

func (s *InMemoryProfiles) Insert(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		err := s.FailInsert
		s.FailInsert = nil
		return err
	}
	if _, ok := s.profiles[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *InMemoryProfiles) Find(ctx context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryProfiles) List(ctx context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.profiles))
	for _, id := range s.order {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryProfiles) Update(ctx context.Context, id, username, role string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.Username = username
	p.Role = role
	s.profiles[id] = p
	return p, nil
}

// Remove deletes a profile row. The Postgres store relies on FK cascade
// when the identity goes away; in-memory wiring hooks this into the
// identity provider's OnDelete callback to emulate that.
func (s *InMemoryProfiles) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return
	}
	delete(s.profiles, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

var _ ProfileStore = (*InMemoryProfiles)(nil)
