// Package identity is the boundary to the service owning authentication
// credentials. Profile data lives elsewhere; the two share only the
// principal id.
package identity

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrEmailTaken   = errors.New("identity: email already registered")
	ErrUnauthorized = errors.New("identity: invalid credentials")
	ErrInvalidInput = errors.New("identity: invalid input")
)

// Provider owns credential records keyed by principal id.
type Provider interface {
	// Create registers credentials and returns the new principal id.
	Create(ctx context.Context, email, password string) (string, error)
	// Delete removes the identity record.
	Delete(ctx context.Context, id string) error
	// SignIn validates an email/password pair and returns the principal id,
	// or ErrUnauthorized without distinguishing unknown email from bad
	// password.
	SignIn(ctx context.Context, email, password string) (string, error)
}
