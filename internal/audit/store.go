package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seyioni/enrollgate/internal/storage"
)

// ErrNotPending is returned when finalizing an event that is missing or has
// already reached a terminal decision.
var ErrNotPending = errors.New("audit event not pending")

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

func (s *SQLiteStore) Insert(ctx context.Context, e *Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}

	err := storage.ExecRetry(func() error {
		_, err := s.db.ExecContext(ctx, queryInsertEvent,
			e.ID, e.MandateID, e.ExecutionID, e.Action,
			e.ArgsHash, string(e.ArgsJSON), string(e.Decision),
			e.StartedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Finalize(ctx context.Context, id string, decision Decision, resultHash string, resultJSON json.RawMessage, finishedAt time.Time) error {
	if decision != DecisionAllowed && decision != DecisionDenied {
		return fmt.Errorf("decision %q is not terminal", decision)
	}

	var affected int64
	err := storage.ExecRetry(func() error {
		res, err := s.db.ExecContext(ctx, queryFinalizeEvent,
			string(decision), resultHash, string(resultJSON),
			finishedAt.UTC().Format(time.RFC3339Nano), id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("finalize event: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotPending)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, querySelectEvent, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, querySelectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}
