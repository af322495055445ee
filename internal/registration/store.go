package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seyioni/enrollgate/internal/storage"
)

// ErrNotFound is the only negative answer the ownership-scoped lookups give.
// A record owned by another user, a record that does not exist, and a failed
// storage query are deliberately indistinguishable.
var ErrNotFound = errors.New("record not found")

// Repo is the ownership-scoped read interface handlers use.
type Repo interface {
	Resolve(ctx context.Context, ref, userID string) (*Registration, error)
	ResolveJob(ctx context.Context, ref, userID string) (*ScheduledJob, error)
	ListByUser(ctx context.Context, userID string) ([]Registration, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}

	for _, stmt := range schemaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("execute schema: %w", err)
		}
	}

	return store, nil
}

func (s *SQLiteStore) Create(ctx context.Context, r *Registration) error {
	if r.ID == "" || r.UserID == "" {
		return fmt.Errorf("registration id and user_id are required")
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	err := storage.ExecRetry(func() error {
		_, err := s.db.ExecContext(ctx, queryInsertRegistration,
			r.ID, r.UserID, r.MandateID, r.Provider, r.ProgramID, r.ChildRef,
			string(r.Status), r.ProgramCostCents, r.ServiceFeeCents,
			r.CreatedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}

	return nil
}

// SetOutcome records the terminal outcome of a signup execution. Scoped by
// user like every other mutation of user-owned rows.
func (s *SQLiteStore) SetOutcome(ctx context.Context, ref, userID string, status Status, finishedAt time.Time) error {
	if status != StatusSuccess && status != StatusFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}

	var affected int64
	err := storage.ExecRetry(func() error {
		res, err := s.db.ExecContext(ctx, querySetOutcome,
			string(status), finishedAt.UTC().Format(time.RFC3339Nano), ref, userID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Resolve returns the registration ref owned by userID. Fail-closed: any
// storage error is logged and reported as not-found, and no query without
// the user filter is ever issued.
func (s *SQLiteStore) Resolve(ctx context.Context, ref, userID string) (*Registration, error) {
	if ref == "" || userID == "" {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, queryResolveRegistration, ref, userID)

	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Warn().Err(err).Str("ref", ref).Msg("scoped registration lookup failed")
		return nil, ErrNotFound
	}

	return r, nil
}

func (s *SQLiteStore) ResolveJob(ctx context.Context, ref, userID string) (*ScheduledJob, error) {
	if ref == "" || userID == "" {
		return nil, ErrNotFound
	}

	var j ScheduledJob
	var runAt string

	row := s.db.QueryRowContext(ctx, queryResolveJob, ref, userID)
	err := row.Scan(&j.ID, &j.UserID, &j.RegistrationID, &runAt, &j.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Warn().Err(err).Str("ref", ref).Msg("scoped job lookup failed")
		return nil, ErrNotFound
	}

	if j.RunAt, err = parseTimestamp(runAt); err != nil {
		log.Warn().Err(err).Str("ref", ref).Msg("scoped job lookup failed")
		return nil, ErrNotFound
	}

	return &j, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]Registration, error) {
	if userID == "" {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, queryListRegistrations, userID)
	if err != nil {
		log.Warn().Err(err).Msg("scoped registration list failed")
		return nil, ErrNotFound
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			log.Warn().Err(err).Msg("scoped registration list failed")
			return nil, ErrNotFound
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Msg("scoped registration list failed")
		return nil, ErrNotFound
	}

	return out, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, j *ScheduledJob) error {
	if j.ID == "" || j.UserID == "" {
		return fmt.Errorf("job id and user_id are required")
	}
	if j.Status == "" {
		j.Status = JobScheduled
	}

	err := storage.ExecRetry(func() error {
		_, err := s.db.ExecContext(ctx, queryInsertJob,
			j.ID, j.UserID, j.RegistrationID,
			j.RunAt.UTC().Format(time.RFC3339Nano), string(j.Status))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*Registration, error) {
	var r Registration
	var createdAt string
	var finishedAt sql.NullString

	err := row.Scan(&r.ID, &r.UserID, &r.MandateID, &r.Provider, &r.ProgramID, &r.ChildRef,
		&r.Status, &r.ProgramCostCents, &r.ServiceFeeCents, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if r.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t, err := parseTimestamp(finishedAt.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}

	return &r, nil
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return t, nil
	}

	// Fallback to SQLite datetime format
	t, err = time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}

	return t, nil
}
