package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrUsernameTaken is returned when a username collides with an existing row.
var ErrUsernameTaken = errors.New("username already exists")

const userColumns = `id, username, password_hash, email, role, is_active, created_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (*User, error) {
	var (
		u         User
		active    int
		lastLogin sql.NullInt64
	)
	if err := r.Scan(&u.ID, &u.Username, &u.PassHash, &u.Email, &u.Role, &active, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Active = active != 0
	if lastLogin.Valid {
		v := lastLogin.Int64
		u.LastLogin = &v
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CountUsers returns the number of user rows.
func (d *DB) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateUser inserts an active user and returns its ID.
func (d *DB) CreateUser(ctx context.Context, username, passHash, email, role string) (int64, error) {
	if username == "" || passHash == "" {
		return 0, errors.New("username and password hash are required")
	}
	if role != RoleAdmin && role != RoleUser {
		return 0, errors.New("invalid role")
	}
	res, err := d.sql.ExecContext(ctx, `
INSERT INTO users(username, password_hash, email, role, is_active, created_at)
VALUES(?, ?, ?, ?, 1, ?)
`, username, passHash, email, role, nowUnix())
	if isUniqueViolation(err) {
		return 0, ErrUsernameTaken
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EnsureDefaultAdmin inserts the bootstrap admin if and only if the users
// table is empty. The count and insert share one transaction so concurrent
// starts cannot both create it.
func (d *DB) EnsureDefaultAdmin(ctx context.Context, username, passHash, email string) (bool, error) {
	created := false
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var n int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(username, password_hash, email, role, is_active, created_at)
VALUES(?, ?, ?, ?, 1, ?)
`, username, passHash, email, RoleAdmin, nowUnix()); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// GetUserByID looks up a user by ID.
func (d *DB) GetUserByID(ctx context.Context, id int64) (*User, bool, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	if err == nil {
		return u, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

// GetUserByUsername looks up a user by username.
func (d *DB) GetUserByUsername(ctx context.Context, username string) (*User, bool, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
	if err == nil {
		return u, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

// ListUsers returns all users ordered by ID.
func (d *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateUser applies the non-nil fields of p. It reports false when no row
// has the given ID.
func (d *DB) UpdateUser(ctx context.Context, id int64, p UserPatch) (bool, error) {
	if id <= 0 {
		return false, errors.New("invalid user id")
	}
	var (
		sets []string
		args []any
	)
	if p.Username != nil {
		sets, args = append(sets, "username=?"), append(args, *p.Username)
	}
	if p.Email != nil {
		sets, args = append(sets, "email=?"), append(args, *p.Email)
	}
	if p.Role != nil {
		if *p.Role != RoleAdmin && *p.Role != RoleUser {
			return false, errors.New("invalid role")
		}
		sets, args = append(sets, "role=?"), append(args, *p.Role)
	}
	if p.Active != nil {
		sets, args = append(sets, "is_active=?"), append(args, boolToInt(*p.Active))
	}
	if len(sets) == 0 {
		_, ok, err := d.GetUserByID(ctx, id)
		return ok, err
	}
	args = append(args, id)
	res, err := d.sql.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...)
	if isUniqueViolation(err) {
		return false, ErrUsernameTaken
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetUserPasswordHash updates a user's password hash.
func (d *DB) SetUserPasswordHash(ctx context.Context, id int64, passHash string) (bool, error) {
	if id <= 0 {
		return false, errors.New("invalid user id")
	}
	if passHash == "" {
		return false, errors.New("password hash is required")
	}
	res, err := d.sql.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, passHash, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TouchLastLogin stamps the user's last successful login.
func (d *DB) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE users SET last_login=? WHERE id=?`, nowUnix(), id)
	return err
}
