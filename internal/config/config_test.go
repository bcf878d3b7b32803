// Package config tests validate config loading behavior.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sethvargo/go-envconfig"
)

// TestLoadWritesDefaults creates the file when it is missing.
func TestLoadWritesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "filegate.yaml")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != 11777 || c.MaxConnections != 10 || c.SessionTimeout != 3600 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}

// TestLoadMergesDefaults keeps defaults for keys absent from the file.
func TestLoadMergesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "filegate.yaml")
	if err := os.WriteFile(p, []byte("port: 9000\nroot_dir: /srv/share\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != 9000 || c.RootDir != "/srv/share" {
		t.Fatalf("file values ignored: %+v", c)
	}
	if c.ChunkSize != 1<<20 || !c.EnableRemoteRestart || c.AllowedIPs[0] != "*" {
		t.Fatalf("defaults lost: %+v", c)
	}
}

// TestLoadRejectsInvalid reports range violations.
func TestLoadRejectsInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "filegate.yaml")
	if err := os.WriteFile(p, []byte("port: 70000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}

// TestEnvOverrides applies FILEGATE_* variables over file values.
func TestEnvOverrides(t *testing.T) {
	c := Defaults()
	c.Port = 9000
	l := envconfig.MapLookuper(map[string]string{
		"FILEGATE_PORT":          "9100",
		"FILEGATE_ENABLE_WEBDAV": "true",
		"FILEGATE_ALLOWED_IPS":   "10.0.0.0/8,127.0.0.1",
	})
	if err := applyEnv(context.Background(), &c, l); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if c.Port != 9100 || !c.EnableWebDAV || len(c.AllowedIPs) != 2 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.SessionTimeout != 3600 {
		t.Fatalf("unset variable clobbered value: %d", c.SessionTimeout)
	}
}

// TestValidateRejectsFilesystemRoot refuses a sandbox spanning the whole disk.
func TestValidateRejectsFilesystemRoot(t *testing.T) {
	c := Defaults()
	c.RootDir = "/"
	if err := Validate(c); err == nil || !strings.Contains(err.Error(), "root_dir") {
		t.Fatalf("expected root_dir error, got %v", err)
	}
	p := filepath.Join(t.TempDir(), "filegate.yaml")
	if err := os.WriteFile(p, []byte("root_dir: /\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected Load to reject root_dir /")
	}
}
