package mandate

const (
	tableSchema = `
		CREATE TABLE IF NOT EXISTS mandates (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			scope TEXT NOT NULL,
			caps TEXT NOT NULL,
			valid_from DATETIME NOT NULL,
			valid_until DATETIME NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('active', 'revoked', 'expired')),
			token TEXT NOT NULL
		)`

	indexUser = `
		CREATE INDEX IF NOT EXISTS idx_mandates_user ON mandates(user_id)`
)

func schemaStatements() []string {
	return []string{
		tableSchema,
		indexUser,
	}
}
