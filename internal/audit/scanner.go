package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return events, nil
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var argsJSON, resultJSON, startedAt string
	var finishedAt sql.NullString

	err := row.Scan(&e.ID, &e.MandateID, &e.ExecutionID, &e.Action,
		&e.ArgsHash, &argsJSON, &e.Decision,
		&e.ResultHash, &resultJSON, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	e.ArgsJSON = json.RawMessage(argsJSON)
	if resultJSON != "" {
		e.ResultJSON = json.RawMessage(resultJSON)
	}

	if e.StartedAt, err = parseTimestamp(startedAt); err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		t, err := parseTimestamp(finishedAt.String)
		if err != nil {
			return nil, err
		}
		e.FinishedAt = &t
	}

	return &e, nil
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
