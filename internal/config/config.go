// Package config loads the mailtriage configuration file and supplies
// defaults for everything the file leaves out. Command-line flags
// override individual values per run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Auth mode values for Config.Auth and the -auth flag.
const (
	AuthOAuth    = "oauth"
	AuthGmailctl = "gmailctl"
)

const (
	DefaultMaxMessages = 20
	DefaultPageSize    = 100
	DefaultRPS         = 5
)

// Config is the TOML file at ~/.mailtriage/config.toml.
type Config struct {
	Rules       string `toml:"rules"`
	DB          string `toml:"db"`
	Query       string `toml:"query"`
	MaxMessages int    `toml:"max_messages"`
	PageSize    int    `toml:"page_size"`
	RPS         int    `toml:"rps"`

	Auth         string `toml:"auth"`
	Credentials  string `toml:"credentials"`
	Token        string `toml:"token"`
	AuthDir      string `toml:"auth_dir"` // empty defers to gmailctl's own default
	CreateLabels bool   `toml:"create_labels"`
	LogLevel     string `toml:"log_level"`
}

// Dir returns the mailtriage config directory, ~/.mailtriage.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".mailtriage"), nil
}

// GmailctlDir returns the default gmailctl config directory, ~/.gmailctl,
// used when auth_dir is not set.
func GmailctlDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".gmailctl"), nil
}

// Default returns the built-in configuration anchored at dir. An empty
// query fetches the most recent messages across the whole mailbox.
func Default(dir string) Config {
	return Config{
		Rules:       filepath.Join(dir, "rules.json"),
		DB:          filepath.Join(dir, "triage.db"),
		Query:       "",
		MaxMessages: DefaultMaxMessages,
		PageSize:    DefaultPageSize,
		RPS:         DefaultRPS,
		Auth:        AuthOAuth,
		Credentials: filepath.Join(dir, "credentials.json"),
		Token:       filepath.Join(dir, "token.json"),
		LogLevel:    "info",
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// fine unless explicit is set (the user named the path themselves); a
// file that exists must parse and validate.
func Load(path string, explicit bool, defaults Config) (Config, error) {
	cfg := defaults
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) && !explicit {
			return defaults, nil
		}
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values a config can get wrong regardless of
// whether they came from the file or from flags.
func (c Config) Validate() error {
	switch c.Auth {
	case AuthOAuth, AuthGmailctl:
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Auth)
	}
	if c.MaxMessages < 0 {
		return fmt.Errorf("config: max_messages cannot be negative")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be positive")
	}
	if c.RPS <= 0 {
		return fmt.Errorf("config: rps must be positive")
	}
	if c.Rules == "" {
		return fmt.Errorf("config: rules path is empty")
	}
	if c.DB == "" {
		return fmt.Errorf("config: db path is empty")
	}
	return nil
}
