package audit

const (
	tableSchema = `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			mandate_id TEXT NOT NULL DEFAULT '',
			execution_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			args_hash TEXT NOT NULL,
			args_json TEXT NOT NULL,
			decision TEXT NOT NULL CHECK(decision IN ('pending', 'allowed', 'denied')),
			result_hash TEXT NOT NULL DEFAULT '',
			result_json TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`

	// A pending row may be finalized once; terminal rows never change.
	triggerPreventTerminalUpdate = `
		CREATE TRIGGER IF NOT EXISTS prevent_terminal_update
		BEFORE UPDATE ON audit_events
		FOR EACH ROW
		WHEN OLD.decision != 'pending'
		BEGIN
			SELECT RAISE(FAIL, 'Updates not allowed on terminal audit events');
		END`

	triggerPreventDelete = `
		CREATE TRIGGER IF NOT EXISTS prevent_delete
		BEFORE DELETE ON audit_events
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Deletes not allowed on audit_events');
		END`

	indexStarted = `
		CREATE INDEX IF NOT EXISTS idx_audit_started ON audit_events(started_at DESC)`

	indexExecution = `
		CREATE INDEX IF NOT EXISTS idx_audit_execution ON audit_events(execution_id)`
)

func schemaStatements() []string {
	return []string{
		tableSchema,
		triggerPreventTerminalUpdate,
		triggerPreventDelete,
		indexStarted,
		indexExecution,
	}
}
