// Package config provides functionality for managing configuration options
// for the server and the capture client using command-line flags, JSON
// config files and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Duration is a time.Duration that reads "15s"-style strings from JSON and
// from the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// plain numbers are milliseconds
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	return d.Decode(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(value string) error {
	v, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", value, err)
	}
	d.Duration = v
	return nil
}

// Options holds the configuration values for the server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"server_address" envconfig:"SERVER_ADDRESS"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn" envconfig:"DATABASE_DSN"`

	// Config is the path to the Config file.
	Config string `json:"-" envconfig:"CONFIG"`

	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL"`

	// CertDir holds ca.crt, ca.key, server.crt and server.key.
	CertDir string `json:"cert_dir" envconfig:"CERT_DIR"`

	CleanupInterval  Duration `json:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
	CleanupRetention Duration `json:"cleanup_retention" envconfig:"CLEANUP_RETENTION"`
}

// Parse parses the command-line flags, the optional config file and the
// environment, in that order of increasing precedence.
func Parse(args []string) (*Options, error) {
	options := &Options{
		CleanupInterval:  Duration{time.Hour},
		CleanupRetention: Duration{30 * 24 * time.Hour},
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.CertDir, "certs", "certs", "directory with TLS material")
	fs.DurationVar(&options.CleanupInterval.Duration, "cleanup-interval", options.CleanupInterval.Duration, "soft-delete purge interval")
	fs.DurationVar(&options.CleanupRetention.Duration, "cleanup-retention", options.CleanupRetention.Duration, "how long soft-deleted rows are kept")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// The file path itself may come from the environment.
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}
	if err := loadFile(options.Config, options); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", options); err != nil {
		return nil, fmt.Errorf("error while reading environment: %w", err)
	}
	return options, nil
}

// Settings configures the capture client.
type Settings struct {
	BaseURL     string `json:"base_url" envconfig:"BASE_URL"`
	CertDir     string `json:"cert_dir" envconfig:"CERT_DIR"`
	PendingFile string `json:"pending_file" envconfig:"PENDING_FILE"`
	LogLevel    string `json:"log_level" envconfig:"LOG_LEVEL"`

	AutoSaveEnabled   bool `json:"auto_save_enabled" envconfig:"AUTO_SAVE_ENABLED"`
	ConfirmBeforeSave bool `json:"confirm_before_save" envconfig:"CONFIRM_BEFORE_SAVE"`

	PromptTimeout        Duration `json:"prompt_timeout" envconfig:"PROMPT_TIMEOUT"`
	ContentMaxAge        Duration `json:"content_max_age" envconfig:"CONTENT_MAX_AGE"`
	BackgroundMaxAge     Duration `json:"background_max_age" envconfig:"BACKGROUND_MAX_AGE"`
	PendingRetryInterval Duration `json:"pending_retry_interval" envconfig:"PENDING_RETRY_INTERVAL"`

	// SkipURLPatterns are glob patterns of pages that are never instrumented.
	SkipURLPatterns []string `json:"skip_url_patterns" envconfig:"SKIP_URL_PATTERNS"`
}

// EnvPrefix prefixes every client environment variable.
const EnvPrefix = "LOGINKEEPER"

func DefaultSettings() Settings {
	return Settings{
		BaseURL:              "https://localhost:8080",
		CertDir:              "certs",
		PendingFile:          "loginkeeper-pending.json",
		LogLevel:             "info",
		AutoSaveEnabled:      true,
		ConfirmBeforeSave:    false,
		PromptTimeout:        Duration{15 * time.Second},
		ContentMaxAge:        Duration{30 * time.Second},
		BackgroundMaxAge:     Duration{60 * time.Second},
		PendingRetryInterval: Duration{10 * time.Second},
		SkipURLPatterns: []string{
			"chrome://*",
			"chrome-extension://*",
			"about:*",
			"moz-extension://*",
			"file://*",
		},
	}
}

// LoadSettings starts from DefaultSettings, applies the JSON file at path
// (a missing file is ignored) and then LOGINKEEPER_* variables.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if err := loadFile(path, &s); err != nil {
		return s, err
	}
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return s, fmt.Errorf("error while reading environment: %w", err)
	}
	return s, nil
}

func loadFile(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}
