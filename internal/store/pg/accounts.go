package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"codewatch.org/internal/account"
	"codewatch.org/internal/auth"
	"codewatch.org/internal/identity"
	"codewatch.org/internal/ids"
)

const profileColumns = `id, coalesce(username,''), coalesce(email,''), coalesce(role,'')`

var _ account.ProfileStore = (*Store)(nil)

func (s *Store) Insert(ctx context.Context, p account.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users_profile(id, username, email, role)
		values ($1, nullif($2,''), nullif($3,''), nullif($4,''))
	`, p.ID, p.Username, p.Email, p.Role)
	return err
}

func (s *Store) Find(ctx context.Context, id string) (account.Profile, error) {
	var p account.Profile
	err := s.db.QueryRowContext(ctx, `
		select `+profileColumns+` from users_profile where id=$1
	`, id).Scan(&p.ID, &p.Username, &p.Email, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Profile{}, account.ErrNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]account.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+profileColumns+` from users_profile order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []account.Profile
	for rows.Next() {
		var p account.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.Email, &p.Role); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) Update(ctx context.Context, id, username, role string) (account.Profile, error) {
	var p account.Profile
	err := s.db.QueryRowContext(ctx, `
		update users_profile
		set username=nullif($2,''), role=$3, updated_at=now()
		where id=$1
		returning `+profileColumns+`
	`, id, username, role).Scan(&p.ID, &p.Username, &p.Email, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Profile{}, account.ErrNotFound
	}
	if err != nil {
		return account.Profile{}, err
	}
	return p, nil
}

// IdentityStore implements the identity-provider boundary on the identities
// table. Profile rows reference it with on-delete cascade.
type IdentityStore struct {
	db *sql.DB
}

var _ identity.Provider = (*IdentityStore)(nil)

func NewIdentityStore(db *sql.DB) *IdentityStore { return &IdentityStore{db: db} }

func (s *IdentityStore) Create(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", identity.ErrInvalidInput
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", identity.ErrInvalidInput
	}
	id := ids.New()
	if _, err := s.db.ExecContext(ctx, `
		insert into identities(id, email, password_hash) values ($1, $2, $3)
	`, id, email, hash); err != nil {
		if isUniqueViolation(err) {
			return "", identity.ErrEmailTaken
		}
		return "", err
	}
	return id, nil
}

func (s *IdentityStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from identities where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) SignIn(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var (
		id   string
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, password_hash from identities where email=$1
	`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", identity.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	if err := auth.VerifyPassword(hash, password); err != nil {
		return "", identity.ErrUnauthorized
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
