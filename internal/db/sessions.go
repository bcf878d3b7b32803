package db

import (
	"context"
	"database/sql"
	"errors"
)

// ReplaceSessions deletes every existing session of s.UserID and inserts s,
// atomically.
func (d *DB) ReplaceSessions(ctx context.Context, s Session) error {
	if s.Token == "" || s.UserID <= 0 {
		return errors.New("token and user id are required")
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, s.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO sessions(token, user_id, created_at, expires_at, source_addr)
VALUES(?, ?, ?, ?, ?)
`, s.Token, s.UserID, s.CreatedAt, s.ExpiresAt, s.SourceAddr)
		return err
	})
}

// GetSession returns the session row for token, expired or not.
func (d *DB) GetSession(ctx context.Context, token string) (*Session, bool, error) {
	var s Session
	err := d.sql.QueryRowContext(ctx, `
SELECT token, user_id, created_at, expires_at, source_addr FROM sessions WHERE token=?
`, token).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.SourceAddr)
	if err == nil {
		return &s, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

// DeleteSession removes a single session. Deleting a missing token is not an error.
func (d *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

// DeleteSessionsForUser removes every session of a user and returns their tokens.
func (d *DB) DeleteSessionsForUser(ctx context.Context, userID int64) ([]string, error) {
	var tokens []string
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT token FROM sessions WHERE user_id=?`, userID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return err
			}
			tokens = append(tokens, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, userID)
		return err
	})
	return tokens, err
}

// DeleteExpiredSessions removes sessions with expires_at <= now.
func (d *DB) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
