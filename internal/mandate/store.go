package mandate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no mandate exists for an id.
var ErrNotFound = errors.New("mandate not found")

// Store provides access to mandate records. Records are created by the
// external issuance service; Put exists for provisioning and tests.
type Store interface {
	Get(ctx context.Context, id string) (*Mandate, error)
	Put(ctx context.Context, m *Mandate) error
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

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Mandate, error) {
	row := s.db.QueryRowContext(ctx, queryGet, id)

	var m Mandate
	var scope, caps, validFrom, validUntil string

	err := row.Scan(&m.ID, &m.UserID, &m.Provider, &scope, &caps, &validFrom, &validUntil, &m.Status, &m.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan mandate: %w", err)
	}

	if err := json.Unmarshal([]byte(scope), &m.Scope); err != nil {
		return nil, fmt.Errorf("decode scope: %w", err)
	}
	if err := json.Unmarshal([]byte(caps), &m.Caps); err != nil {
		return nil, fmt.Errorf("decode caps: %w", err)
	}

	if m.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, err
	}
	if m.ValidUntil, err = parseTime(validUntil); err != nil {
		return nil, err
	}

	return &m, nil
}

func (s *SQLiteStore) Put(ctx context.Context, m *Mandate) error {
	scope, err := json.Marshal(m.Scope)
	if err != nil {
		return fmt.Errorf("encode scope: %w", err)
	}
	caps, err := json.Marshal(m.Caps)
	if err != nil {
		return fmt.Errorf("encode caps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, queryInsert,
		m.ID, m.UserID, m.Provider, string(scope), string(caps),
		m.ValidFrom.UTC().Format(time.RFC3339), m.ValidUntil.UTC().Format(time.RFC3339),
		string(m.Status), m.Token)
	if err != nil {
		return fmt.Errorf("insert mandate: %w", err)
	}

	return nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
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
