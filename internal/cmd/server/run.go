// Package server implements the "filegate server" CLI subcommand.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"filegate/internal/config"
	"filegate/internal/daemon"
	"filegate/internal/logging"
	"filegate/internal/version"
)

type Options struct {
	ConfigPath     string
	LogLevel       string
	Port           int
	RootDir        string
	DisableRestart bool
}

func Run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var opt Options
	var showVersion bool
	fs.StringVar(&opt.ConfigPath, "config", "filegate.yaml", "path to filegate.yaml (created with defaults if missing)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&opt.LogLevel, "log-level", "", "log level: debug|info|warning|error (overrides config)")
	fs.IntVar(&opt.Port, "port", 0, "listen port (overrides config)")
	fs.StringVar(&opt.RootDir, "root", "", "sandbox root directory (overrides config)")
	fs.BoolVar(&opt.DisableRestart, "disable-restart", false, "disable the remote restart endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("filegate server %s\n", version.Version)
		return nil
	}

	c, err := loadConfig(opt)
	if err != nil {
		return err
	}

	lg, closer, err := logging.New(logging.Options{
		Level:       c.LogLevel,
		JSON:        c.LogJSON,
		File:        c.LogFile,
		DefaultSlog: true,
	})
	if err != nil {
		return err
	}
	lg.Info("starting filegate", "version", version.Version, "config", opt.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = daemon.Run(ctx, daemon.Options{Config: c, Logger: lg})
	stop()
	_ = closer.Close()
	if errors.Is(err, daemon.ErrRestart) {
		return daemon.Reexec()
	}
	return err
}

// loadConfig reads the config file, applies CLI overrides and resolves
// relative paths against the config file's directory.
func loadConfig(opt Options) (config.Config, error) {
	c, err := config.Load(opt.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opt.Port != 0 {
		c.Port = opt.Port
	}
	if strings.TrimSpace(opt.RootDir) != "" {
		c.RootDir = opt.RootDir
	}
	if opt.DisableRestart {
		c.EnableRemoteRestart = false
	}
	if strings.TrimSpace(opt.LogLevel) != "" {
		c.LogLevel = opt.LogLevel
	}

	base := filepath.Dir(opt.ConfigPath)
	c.RootDir = resolvePath(base, c.RootDir)
	c.DBPath = resolvePath(base, c.DBPath)
	c.DataDir = resolvePath(base, c.DataDir)
	c.TLSCertPath = resolvePath(base, c.TLSCertPath)
	c.TLSKeyPath = resolvePath(base, c.TLSKeyPath)
	c.LogFile = resolvePath(base, c.LogFile)

	if err := config.Validate(c); err != nil {
		return config.Config{}, err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return config.Config{}, fmt.Errorf("log_level: %w", err)
	}
	return c, nil
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(filepath.Join(baseDir, p)); err == nil {
		return abs
	}
	return filepath.Join(baseDir, p)
}
