package identity

import (
	"context"
	"strings"
	"sync"

	"codewatch.org/internal/auth"
	"codewatch.org/internal/ids"
)

type record struct {
	id           string
	email        string
	passwordHash string
}

// InMemory implements Provider for tests and DSN-less development runs.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]*record
	byEmail map[string]*record

	// OnDelete, when set, runs after a successful Delete. Stands in for the
	// FK cascade the Postgres schema provides.
	OnDelete func(id string)
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*record),
		byEmail: make(map[string]*record),
	}
}

func (p *InMemory) Create(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidInput
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", ErrInvalidInput
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[email]; ok {
		return "", ErrEmailTaken
	}
	rec := &record{id: ids.New(), email: email, passwordHash: hash}
	p.byID[rec.id] = rec
	p.byEmail[email] = rec
	return rec.id, nil
}

func (p *InMemory) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	rec, ok := p.byID[id]
	if ok {
		delete(p.byID, id)
		delete(p.byEmail, rec.email)
	}
	p.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if p.OnDelete != nil {
		p.OnDelete(id)
	}
	return nil
}

func (p *InMemory) SignIn(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	p.mu.RLock()
	rec, ok := p.byEmail[email]
	p.mu.RUnlock()
	if !ok {
		return "", ErrUnauthorized
	}
	if err := auth.VerifyPassword(rec.passwordHash, password); err != nil {
		return "", ErrUnauthorized
	}
	return rec.id, nil
}

var _ Provider = (*InMemory)(nil)
