// Package account manages user profiles. Profiles are keyed by the identity
// provider's principal id; creating an account touches both systems.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"codewatch.org/internal/identity"
	"codewatch.org/internal/obs"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrNotFound     = errors.New("account: not found")
	ErrInvalidInput = errors.New("account: invalid input")
	// ErrIdentityCreate and ErrProfileCreate distinguish which step of the
	// two-system creation sequence failed.
	ErrIdentityCreate = errors.New("account: identity creation failed")
	ErrProfileCreate  = errors.New("account: profile creation failed")
)

// Profile identifies an account holder. Username and email may be empty for
// rows created before those columns were populated.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// ProfileStore persists profile rows.
type ProfileStore interface {
	Insert(ctx context.Context, p Profile) error
	Find(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context) ([]Profile, error)
	// Update mutates username and role only and reports ErrNotFound when no
	// row matches; it never creates a row as a side effect.
	Update(ctx context.Context, id, username, role string) (Profile, error)
}

// Service bridges the identity provider and the profile table.
type Service struct {
	identities identity.Provider
	profiles   ProfileStore
}

func NewService(identities identity.Provider, profiles ProfileStore) (*Service, error) {
	if identities == nil || profiles == nil {
		return nil, errors.New("account: identity provider and profile store are required")
	}
	return &Service{identities: identities, profiles: profiles}, nil
}

// List returns all profiles in store-default order.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	return s.profiles.List(ctx)
}

// Find returns one profile by principal id.
func (s *Service) Find(ctx context.Context, id string) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return s.profiles.Find(ctx, id)
}

// Add creates an identity with a generated placeholder password, then the
// profile row referencing it. The two calls are not transactional across
// systems, so a failed profile insert triggers a compensating identity
// delete; the account either fully exists or not at all. New accounts get
// role "user".
func (s *Service) Add(ctx context.Context, username, email string) (Profile, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Profile{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	password, err := placeholderPassword()
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrIdentityCreate, err)
	}
	principalID, err := s.identities.Create(ctx, email, password)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrIdentityCreate, err)
	}

	p := Profile{
		ID:       principalID,
		Username: username,
		Email:    email,
		Role:     RoleUser,
	}
	if err := s.profiles.Insert(ctx, p); err != nil {
		// Compensate so no identity is left without a profile.
		if delErr := s.identities.Delete(ctx, principalID); delErr != nil {
			obs.LogRequest(map[string]any{
				"level":        "error",
				"msg":          "orphaned identity after failed profile insert",
				"principal_id": principalID,
				"error":        delErr.Error(),
			})
		}
		return Profile{}, fmt.Errorf("%w: %v", ErrProfileCreate, err)
	}
	return p, nil
}

// Update revises username and role. Identifier and email are not revisable
// through this path.
func (s *Service) Update(ctx context.Context, id, username, role string) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	username = strings.TrimSpace(username)
	role = strings.TrimSpace(strings.ToLower(role))
	if role != RoleAdmin && role != RoleUser {
		return Profile{}, fmt.Errorf("%w: role must be %q or %q", ErrInvalidInput, RoleAdmin, RoleUser)
	}
	return s.profiles.Update(ctx, id, username, role)
}

// Delete removes the identity record. The profile row goes with it by
// cascade; removal of the profile is not separately verified.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if err := s.identities.Delete(ctx, id); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func placeholderPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
