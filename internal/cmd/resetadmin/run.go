// Package resetadmin implements the "filegate reset-admin" CLI subcommand.
// It resets an admin password directly in the SQLite database and does not
// need the server to be running.
package resetadmin

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"filegate/internal/config"
	isetup "filegate/internal/setup"
)

type Options struct {
	ConfigPath  string
	Username    string
	Password    string
	PasswordEnv bool
}

func Run(args []string) error {
	fs := flag.NewFlagSet("reset-admin", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "filegate.yaml", "path to filegate.yaml")
	fs.StringVar(&opt.Username, "username", isetup.DefaultAdminUsername, "admin account to reset")
	fs.StringVar(&opt.Password, "password", "", "set the password non-interactively")
	fs.BoolVar(&opt.PasswordEnv, "password-env", false, "read the password from "+isetup.AdminPasswordEnv)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := config.Load(opt.ConfigPath)
	if err != nil {
		return err
	}
	dbPath := c.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(filepath.Dir(opt.ConfigPath), dbPath)
	}

	if err := isetup.ResetAdmin(context.Background(), isetup.ResetAdminOptions{
		DBPath:          dbPath,
		Username:        opt.Username,
		Password:        opt.Password,
		PasswordFromEnv: opt.PasswordEnv,
	}); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "password for %q reset; existing sessions revoked\n", opt.Username)
	return nil
}
