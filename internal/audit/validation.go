package audit

import (
	"encoding/json"
	"fmt"
)

func validateEvent(e *Event) error {
	if e.ID == "" {
		return fmt.Errorf("event id cannot be empty")
	}

	if e.Action == "" {
		return fmt.Errorf("action cannot be empty")
	}

	if e.ArgsHash == "" {
		return fmt.Errorf("args_hash cannot be empty")
	}

	if len(e.ArgsJSON) == 0 || !json.Valid(e.ArgsJSON) {
		return fmt.Errorf("args_json must be valid JSON")
	}

	if e.Decision != DecisionPending {
		return fmt.Errorf("new events must be pending, got %s", e.Decision)
	}

	return nil
}
