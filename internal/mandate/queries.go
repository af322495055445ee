package mandate

const (
	queryGet = `
		SELECT id, user_id, provider, scope, caps, valid_from, valid_until, status, token
		FROM mandates
		WHERE id = ?`

	queryInsert = `
		INSERT INTO mandates (id, user_id, provider, scope, caps, valid_from, valid_until, status, token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)
