package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"codewatch.org/internal/report"
)

// Store persists violation records and user profiles in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ report.Service = (*Store)(nil)

// Open connects with pool defaults tuned for a small dashboard service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (tests use sqlmock here).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const violationColumns = `id, coalesce(user_id,''), description, violation_type, coalesce(location,''), date, resolved, created_at`

func scanViolation(row interface{ Scan(...any) error }) (report.Violation, error) {
	var v report.Violation
	err := row.Scan(&v.ID, &v.UserID, &v.Description, &v.Type, &v.Location, &v.Date, &v.Resolved, &v.CreatedAt)
	return v, err
}

func (s *Store) ListViolations(ctx context.Context) ([]report.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+violationColumns+`
		from violations
		order by date desc, id desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []report.Violation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *Store) AddViolation(ctx context.Context, sub report.Submission) (report.Violation, error) {
	if err := report.ValidateSubmission(&sub); err != nil {
		return report.Violation{}, err
	}
	date := sub.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	v := report.Violation{
		UserID:      sub.UserID,
		Description: sub.Description,
		Type:        sub.Type,
		Location:    sub.Location,
		Date:        date,
		Resolved:    sub.Resolved,
	}
	err := s.db.QueryRowContext(ctx, `
		insert into violations(user_id, description, violation_type, location, date, resolved)
		values (nullif($1,''), $2, $3, nullif($4,''), $5, $6)
		returning id, created_at
	`, sub.UserID, sub.Description, sub.Type, sub.Location, date, sub.Resolved).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return report.Violation{}, err
	}
	return v, nil
}

func (s *Store) UpdateViolation(ctx context.Context, id int64, upd report.Update) (report.Violation, error) {
	if err := report.ValidateUpdate(&upd); err != nil {
		return report.Violation{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		update violations
		set description=$2, violation_type=$3, location=nullif($4,''), resolved=$5
		where id=$1
		returning `+violationColumns+`
	`, id, upd.Description, upd.Type, upd.Location, upd.Resolved)
	v, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Violation{}, report.ErrNotFound
	}
	if err != nil {
		return report.Violation{}, err
	}
	return v, nil
}

func (s *Store) DeleteViolation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from violations where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// Zero rows affected is surfaced, not swallowed as success.
	if n == 0 {
		return report.ErrNotFound
	}
	return nil
}

// Stats fans five independent counting queries out concurrently and joins
// on all of them. Any single failure fails the whole aggregation; no
// partial result is returned.
func (s *Store) Stats(ctx context.Context) (report.Stats, error) {
	since := time.Now().UTC().Add(-report.NewWindow)

	var stats report.Stats
	g, ctx := errgroup.WithContext(ctx)
	count := func(dst *int64, query string, args ...any) {
		g.Go(func() error {
			return s.db.QueryRowContext(ctx, query, args...).Scan(dst)
		})
	}
	count(&stats.Reported, `select count(*) from violations`)
	count(&stats.Confirmed, `select count(*) from violations where resolved = true`)
	count(&stats.Pending, `select count(*) from violations where resolved = false`)
	count(&stats.New, `select count(*) from violations where date >= $1`, since)
	count(&stats.Users, `select count(*) from users_profile`)
	if err := g.Wait(); err != nil {
		return report.Stats{}, err
	}
	return stats, nil
}
