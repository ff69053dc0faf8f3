// Package config loads the questauth command's settings from
// ~/.config/questauth/config.yaml and QUESTAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/panyam/questauth"
)

const (
	userConfigDir  = ".config/questauth"
	configFileName = "config.yaml"
)

// Store kinds.
const (
	StoreFile      = "file"
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StoreKeyring   = "keyring"
	StoreSQLite    = "sqlite"
	StoreDatastore = "datastore"
)

// Config is the command configuration.
type Config struct {
	ClientID       string        `yaml:"client_id"`
	RedirectURL    string        `yaml:"redirect_url"`
	AuthBaseURL    string        `yaml:"auth_base_url"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`

	// Mock answers API calls from built-in fixture files.
	Mock bool `yaml:"mock"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects where the credential is kept.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Key  string `yaml:"key"`

	// Dir is the file store directory.
	Dir string `yaml:"dir"`

	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`

	KeyringService string `yaml:"keyring_service"`

	SQLitePath string `yaml:"sqlite_path"`

	DatastoreProject   string `yaml:"datastore_project"`
	DatastoreNamespace string `yaml:"datastore_namespace"`

	// SealKey is a base64 XChaCha20-Poly1305 key. When set, values are
	// encrypted before they reach the store.
	SealKey string `yaml:"seal_key"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		AuthBaseURL:    questauth.DefaultAuthBaseURL,
		MaxAttempts:    questauth.DefaultMaxAttempts,
		RefreshTimeout: questauth.DefaultRefreshTimeout,
		Store: StoreConfig{
			Kind: StoreFile,
			Key:  questauth.DefaultStoreKey,
		},
	}
}

// DefaultPath returns ~/.config/questauth/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, userConfigDir, configFileName), nil
}

// Load reads the file at path, or DefaultPath when path is empty, on top of
// Default and then applies environment overrides. A missing file is not an
// error.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// applyEnv overrides settings from QUESTAUTH_* variables. Unparseable
// numbers and durations are ignored.
func applyEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv("QUESTAUTH_" + name)); v != "" {
			*dst = v
		}
	}
	str("CLIENT_ID", &cfg.ClientID)
	str("REDIRECT_URL", &cfg.RedirectURL)
	str("AUTH_BASE_URL", &cfg.AuthBaseURL)
	str("STORE", &cfg.Store.Kind)
	str("STORE_KEY", &cfg.Store.Key)
	str("STORE_DIR", &cfg.Store.Dir)
	str("REDIS_ADDR", &cfg.Store.RedisAddr)
	str("SQLITE_PATH", &cfg.Store.SQLitePath)
	str("DATASTORE_PROJECT", &cfg.Store.DatastoreProject)
	str("SEAL_KEY", &cfg.Store.SealKey)

	if v := strings.TrimSpace(os.Getenv("QUESTAUTH_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUESTAUTH_REFRESH_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RefreshTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUESTAUTH_MOCK")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Mock = b
		}
	}
}

// Validate checks the store selection. Client registration is checked
// when the session is created.
func (c Config) Validate() error {
	switch c.Store.Kind {
	case StoreFile, StoreMemory, StoreKeyring:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store %q requires redis_addr", c.Store.Kind)
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store %q requires sqlite_path", c.Store.Kind)
		}
	case StoreDatastore:
		if c.Store.DatastoreProject == "" {
			return fmt.Errorf("store %q requires datastore_project", c.Store.Kind)
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	return nil
}

// SessionConfig returns the library configuration. The store is opened
// separately with OpenStore.
func (c Config) SessionConfig(store questauth.KeyValueStore) questauth.Config {
	return questauth.Config{
		ClientID:       c.ClientID,
		RedirectURL:    c.RedirectURL,
		AuthBaseURL:    c.AuthBaseURL,
		Store:          store,
		StoreKey:       c.Store.Key,
		MaxAttempts:    c.MaxAttempts,
		RefreshTimeout: c.RefreshTimeout,
	}
}
