package db

import (
	"context"
	"database/sql"
	"errors"
)

// InsertActivity appends an audit row. A zero CreatedAt is stamped with now.
func (d *DB) InsertActivity(ctx context.Context, e ActivityEntry) (int64, error) {
	if e.Action == "" {
		return 0, errors.New("action is required")
	}
	if e.Status != StatusSuccess && e.Status != StatusError {
		return 0, errors.New("invalid activity status")
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = nowUnix()
	}
	var uid sql.NullInt64
	if e.UserID != nil {
		uid = sql.NullInt64{Int64: *e.UserID, Valid: true}
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO activity_logs(user_id, action, target, source_addr, created_at, status, details)
VALUES(?, ?, ?, ?, ?, ?, ?)
`, uid, e.Action, e.Target, e.SourceAddr, e.CreatedAt, e.Status, e.Details)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListActivity returns audit rows newest first. Rows whose user is unknown
// carry the username "Unknown".
func (d *DB) ListActivity(ctx context.Context, limit, offset int) ([]ActivityEntry, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT a.id, a.user_id, COALESCE(u.username, 'Unknown'), a.action, a.target, a.source_addr, a.created_at, a.status, a.details
FROM activity_logs a LEFT JOIN users u ON u.id = a.user_id
ORDER BY a.created_at DESC, a.id DESC
LIMIT ? OFFSET ?
`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		var (
			e   ActivityEntry
			uid sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &uid, &e.Username, &e.Action, &e.Target, &e.SourceAddr, &e.CreatedAt, &e.Status, &e.Details); err != nil {
			return nil, err
		}
		if uid.Valid {
			v := uid.Int64
			e.UserID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountActivity returns the total number of audit rows.
func (d *DB) CountActivity(ctx context.Context) (int64, error) {
	var n int64
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs`).Scan(&n)
	return n, err
}
