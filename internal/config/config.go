// Package config loads the filegate YAML configuration. Values come from the
// built-in defaults, then the YAML file, then FILEGATE_* environment
// variables, in that order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filegate/internal/validate"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "FILEGATE_"

// Config mirrors the filegate.yaml schema.
type Config struct {
	Port    int    `yaml:"port" env:"PORT, overwrite" validate:"min=1,max=65535"`
	Bind    string `yaml:"bind" env:"BIND, overwrite" validate:"required"`
	RootDir string `yaml:"root_dir" env:"ROOT_DIR, overwrite" validate:"required"`
	DBPath  string `yaml:"db_path" env:"DB_PATH, overwrite" validate:"required"`
	DataDir string `yaml:"data_dir" env:"DATA_DIR, overwrite" validate:"required"`

	MaxConnections int      `yaml:"max_connections" env:"MAX_CONNECTIONS, overwrite" validate:"min=1,max=10000"`
	EnableTLS      bool     `yaml:"enable_tls" env:"ENABLE_TLS, overwrite"`
	TLSCertPath    string   `yaml:"tls_cert_path" env:"TLS_CERT_PATH, overwrite"`
	TLSKeyPath     string   `yaml:"tls_key_path" env:"TLS_KEY_PATH, overwrite"`
	AllowedIPs     []string `yaml:"allowed_ips" env:"ALLOWED_IPS, overwrite" validate:"min=1"`

	SessionTimeout       int   `yaml:"session_timeout" env:"SESSION_TIMEOUT, overwrite" validate:"min=60"`
	SessionSweepInterval int   `yaml:"session_sweep_interval" env:"SESSION_SWEEP_INTERVAL, overwrite" validate:"min=0"`
	MaxFileSize          int64 `yaml:"max_file_size" env:"MAX_FILE_SIZE, overwrite" validate:"min=1"`
	ChunkSize            int   `yaml:"chunk_size" env:"CHUNK_SIZE, overwrite" validate:"min=4096,max=67108864"`

	EnableRemoteRestart bool `yaml:"enable_remote_restart" env:"ENABLE_REMOTE_RESTART, overwrite"`
	RestartDelay        int  `yaml:"restart_delay" env:"RESTART_DELAY, overwrite" validate:"min=0,max=300"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL, overwrite"`
	LogFile  string `yaml:"log_file" env:"LOG_FILE, overwrite"`
	LogJSON  bool   `yaml:"log_json" env:"LOG_JSON, overwrite"`

	EnableWebDAV bool   `yaml:"enable_webdav" env:"ENABLE_WEBDAV, overwrite"`
	WebDAVPrefix string `yaml:"webdav_prefix" env:"WEBDAV_PREFIX, overwrite"`

	EnableMetrics          bool `yaml:"enable_metrics" env:"ENABLE_METRICS, overwrite"`
	LoginAttemptsPerMinute int  `yaml:"login_attempts_per_minute" env:"LOGIN_ATTEMPTS_PER_MINUTE, overwrite" validate:"min=1"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() Config {
	return Config{
		Port:                   11777,
		Bind:                   "0.0.0.0",
		RootDir:                "./shared",
		DBPath:                 "./filegate.db",
		DataDir:                "./data",
		MaxConnections:         10,
		AllowedIPs:             []string{"*"},
		SessionTimeout:         3600,
		SessionSweepInterval:   300,
		MaxFileSize:            1 << 30,
		ChunkSize:              1 << 20,
		EnableRemoteRestart:    true,
		RestartDelay:           3,
		LogLevel:               "info",
		LogFile:                "filegate.log",
		WebDAVPrefix:           "/webdav",
		EnableMetrics:          true,
		LoginAttemptsPerMinute: 10,
	}
}

// Load reads path, writing a default file first if it does not exist.
// Keys present in the file override the defaults; environment variables
// override both. The result is validated.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is required")
	}
	c := Defaults()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, c); err != nil {
			return Config{}, fmt.Errorf("write default config: %w", err)
		}
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(context.Background(), &c, envconfig.OsLookuper()); err != nil {
		return Config{}, err
	}
	normalize(&c)
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Save writes c as YAML, creating parent directories as needed.
func Save(path string, c Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func applyEnv(ctx context.Context, c *Config, l envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   c,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, l),
	}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

func normalize(c *Config) {
	c.Bind = strings.TrimSpace(c.Bind)
	c.RootDir = strings.TrimSpace(c.RootDir)
	c.DBPath = strings.TrimSpace(c.DBPath)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.TLSCertPath = strings.TrimSpace(c.TLSCertPath)
	c.TLSKeyPath = strings.TrimSpace(c.TLSKeyPath)
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.WebDAVPrefix = "/" + strings.Trim(strings.TrimSpace(c.WebDAVPrefix), "/")
	for i, ip := range c.AllowedIPs {
		c.AllowedIPs[i] = strings.TrimSpace(ip)
	}
}

// Validate performs sanity checks for required fields and ranges.
func Validate(c Config) error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := validate.RootPath(c.RootDir); err != nil {
		return fmt.Errorf("root_dir: %w", err)
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return errors.New("tls_cert_path and tls_key_path must be set together")
	}
	if c.EnableWebDAV && c.WebDAVPrefix == "/" {
		return errors.New("webdav_prefix must not be /")
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}
