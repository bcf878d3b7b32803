package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filegate/internal/auth"
	"filegate/internal/db"
)

// AdminPasswordEnv is read by ResetAdmin when PasswordFromEnv is set.
const AdminPasswordEnv = "FILEGATE_ADMIN_PASSWORD"

type ResetAdminOptions struct {
	DBPath          string
	Username        string
	Password        string
	PasswordFromEnv bool
	// Prompt replaces the terminal prompt; used by tests.
	Prompt func(label string) (string, error)
}

// ResetAdmin sets a new password for an admin account, reactivating it and
// restoring the admin role. The account is created if it does not exist.
// All of the account's sessions are revoked.
func ResetAdmin(ctx context.Context, opt ResetAdminOptions) error {
	if opt.DBPath == "" {
		return errors.New("db path is required")
	}
	if opt.Username == "" {
		opt.Username = DefaultAdminUsername
	}
	if err := os.MkdirAll(filepath.Dir(opt.DBPath), 0o700); err != nil {
		return err
	}
	pass, err := resolveAdminPassword(opt)
	if err != nil {
		return err
	}
	h, err := auth.HashPassword(pass, auth.DefaultArgon2Params())
	if err != nil {
		return err
	}

	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()

	u, found, err := d.GetUserByUsername(ctx, opt.Username)
	if err != nil {
		return err
	}
	if !found {
		_, err := d.CreateUser(ctx, opt.Username, h, "", db.RoleAdmin)
		return err
	}
	if _, err := d.SetUserPasswordHash(ctx, u.ID, h); err != nil {
		return err
	}
	role, active := db.RoleAdmin, true
	if _, err := d.UpdateUser(ctx, u.ID, db.UserPatch{Role: &role, Active: &active}); err != nil {
		return err
	}
	_, err = d.DeleteSessionsForUser(ctx, u.ID)
	return err
}

func resolveAdminPassword(opt ResetAdminOptions) (string, error) {
	if opt.Password != "" && opt.PasswordFromEnv {
		return "", errors.New("choose one of -password or -password-env")
	}
	var v string
	switch {
	case opt.PasswordFromEnv:
		v = strings.TrimSpace(os.Getenv(AdminPasswordEnv))
		if v == "" {
			return "", fmt.Errorf("%s is empty", AdminPasswordEnv)
		}
	case opt.Password != "":
		v = strings.TrimSpace(opt.Password)
	default:
		prompt := opt.Prompt
		if prompt == nil {
			prompt = promptPassword
		}
		return prompt("New password for " + opt.Username)
	}
	if len(v) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return v, nil
}
