package registration

const (
	tableRegistrations = `
		CREATE TABLE IF NOT EXISTS registrations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			mandate_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			program_id TEXT NOT NULL,
			child_ref TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'success', 'failed')),
			program_cost_cents INTEGER NOT NULL DEFAULT 0,
			service_fee_cents INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			finished_at DATETIME
		)`

	tableScheduledJobs = `
		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			registration_id TEXT NOT NULL,
			run_at DATETIME NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('scheduled', 'running', 'done', 'canceled'))
		)`

	indexRegistrationsUser = `
		CREATE INDEX IF NOT EXISTS idx_registrations_user ON registrations(user_id)`

	indexJobsUser = `
		CREATE INDEX IF NOT EXISTS idx_jobs_user ON scheduled_jobs(user_id)`
)

func schemaStatements() []string {
	return []string{
		tableRegistrations,
		tableScheduledJobs,
		indexRegistrationsUser,
		indexJobsUser,
	}
}
