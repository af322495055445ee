package billing

const (
	tableCharges = `
		CREATE TABLE IF NOT EXISTS charges (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL UNIQUE,
			mandate_id TEXT NOT NULL,
			provider_ref TEXT NOT NULL DEFAULT '',
			amount_cents INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'succeeded', 'failed')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`

	// The unique constraint on execution_id makes the claim atomic: exactly
	// one concurrent caller wins the insert.
	queryClaimCharge = `
		INSERT INTO charges (id, execution_id, mandate_id, amount_cents, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(execution_id) DO NOTHING`

	querySettleCharge = `
		UPDATE charges
		SET provider_ref = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	querySelectByExecution = `
		SELECT id, execution_id, mandate_id, provider_ref, amount_cents, status, created_at, updated_at
		FROM charges
		WHERE execution_id = ?`
)
