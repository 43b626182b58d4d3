package account

import (
	"context"
	"errors"
	"testing"

	"codewatch.org/internal/identity"
)

func newTestService(t *testing.T) (*Service, *identity.InMemory, *InMemoryProfiles) {
	t.Helper()
	ids := identity.NewInMemory()
	profiles := NewInMemoryProfiles()
	ids.OnDelete = profiles.Remove
	svc, err := NewService(ids, profiles)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, ids, profiles
}

func TestAddCreatesIdentityAndProfile(t *testing.T) {
	svc, ids, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Add(ctx, "Thandi", "thandi@example.org")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if p.Role != RoleUser {
		t.Fatalf("expected default role %q, got %q", RoleUser, p.Role)
	}
	if p.ID == "" {
		t.Fatalf("expected principal id assigned")
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("unexpected listing: %+v", list)
	}

	// The identity exists too: the same email cannot be registered twice.
	if _, err := ids.Create(ctx, "thandi@example.org", "another-secret"); !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestAddRejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, email := range []string{"", "   ", "not-an-email"} {
		if _, err := svc.Add(context.Background(), "x", email); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("email %q: expected ErrInvalidInput, got %v", email, err)
		}
	}
}

func TestAddCompensatesOnProfileFailure(t *testing.T) {
	svc, ids, profiles := newTestService(t)
	ctx := context.Background()

	profiles.FailInsert = errors.New("insert rejected")
	_, err := svc.Add(ctx, "Zed", "zed@example.org")
	if !errors.Is(err, ErrProfileCreate) {
		t.Fatalf("expected ErrProfileCreate, got %v", err)
	}

	// The compensating delete must have removed the identity, so the email
	// is free again and the retry fully succeeds.
	p, err := svc.Add(ctx, "Zed", "zed@example.org")
	if err != nil {
		t.Fatalf("retry Add: %v", err)
	}
	if p.Email != "zed@example.org" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if _, err := ids.Create(ctx, "zed@example.org", "whatever-secret"); !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("identity missing after retry: %v", err)
	}
}

func TestUpdateMutatesUsernameAndRoleOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Add(ctx, "Sipho", "sipho@example.org")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := svc.Update(ctx, p.ID, "Zed", RoleAdmin)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Username != "Zed" || got.Role != RoleAdmin {
		t.Fatalf("unexpected profile after update: %+v", got)
	}
	if got.Email != p.Email || got.ID != p.ID {
		t.Fatalf("update touched immutable fields: %+v", got)
	}
}

func TestUpdateUnknownIDFailsWithoutUpsert(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Update(ctx, "u1", "Zed", RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("update created a row as a side effect: %+v", list)
	}
}

func TestUpdateRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Update(context.Background(), "u1", "Zed", "superuser"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteRemovesIdentityAndProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Add(ctx, "Nadia", "nadia@example.org")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, got := range list {
		if got.ID == p.ID {
			t.Fatalf("profile still listed after delete")
		}
	}

	if err := svc.Delete(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
