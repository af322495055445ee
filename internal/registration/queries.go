package registration

const (
	queryInsertRegistration = `
		INSERT INTO registrations (id, user_id, mandate_id, provider, program_id, child_ref, status, program_cost_cents, service_fee_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// Every read of a user-owned record carries the user filter. There is no
	// unscoped variant of these queries.
	queryResolveRegistration = `
		SELECT id, user_id, mandate_id, provider, program_id, child_ref, status, program_cost_cents, service_fee_cents, created_at, finished_at
		FROM registrations
		WHERE id = ? AND user_id = ?`

	queryListRegistrations = `
		SELECT id, user_id, mandate_id, provider, program_id, child_ref, status, program_cost_cents, service_fee_cents, created_at, finished_at
		FROM registrations
		WHERE user_id = ?
		ORDER BY created_at DESC`

	querySetOutcome = `
		UPDATE registrations
		SET status = ?, finished_at = ?
		WHERE id = ? AND user_id = ?`

	queryInsertJob = `
		INSERT INTO scheduled_jobs (id, user_id, registration_id, run_at, status)
		VALUES (?, ?, ?, ?, ?)`

	queryResolveJob = `
		SELECT id, user_id, registration_id, run_at, status
		FROM scheduled_jobs
		WHERE id = ? AND user_id = ?`
)
