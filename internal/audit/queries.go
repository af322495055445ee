package audit

const (
	queryInsertEvent = `
		INSERT INTO audit_events (id, mandate_id, execution_id, action, args_hash, args_json, decision, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryFinalizeEvent = `
		UPDATE audit_events
		SET decision = ?, result_hash = ?, result_json = ?, finished_at = ?
		WHERE id = ? AND decision = 'pending'`

	querySelectEvent = `
		SELECT id, mandate_id, execution_id, action, args_hash, args_json, decision, result_hash, result_json, started_at, finished_at
		FROM audit_events
		WHERE id = ?`

	querySelectRecent = `
		SELECT id, mandate_id, execution_id, action, args_hash, args_json, decision, result_hash, result_json, started_at, finished_at
		FROM audit_events
		ORDER BY started_at DESC
		LIMIT ?`
)
