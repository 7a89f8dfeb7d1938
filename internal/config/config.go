// Package config handles configuration loading and validation for phymv.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datagrid/phymv/internal/checksum"
	"github.com/datagrid/phymv/internal/policy"
	"github.com/datagrid/phymv/pkg/bytesize"
	"gopkg.in/yaml.v3"
)

// Catalog backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Resource kinds.
const (
	KindVault = "vault"
	KindZstd  = "zstd"
)

// Config is the complete phymv configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Resources []ResourceConfig `yaml:"resources"`
	Policy    PolicyConfig     `yaml:"policy"`
	Transfer  TransferConfig   `yaml:"transfer"`
	Log       LogConfig        `yaml:"log"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Listen          string `yaml:"listen"`
	ShutdownTimeout string `yaml:"shutdown_timeout"` // Duration string, e.g. "30s"
}

// CatalogConfig selects and configures the catalog backend.
type CatalogConfig struct {
	Backend      string       `yaml:"backend"` // memory, badger or redis
	Badger       BadgerConfig `yaml:"badger"`
	Redis        RedisConfig  `yaml:"redis"`
	MaxRetries   int          `yaml:"max_retries"`   // retries after a lost compare-and-swap
	RetryBackoff string       `yaml:"retry_backoff"` // Duration string, e.g. "20ms"
}

// BadgerConfig holds configuration for the Badger catalog.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// RedisConfig holds configuration for the Redis catalog.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
	DialTimeout string `yaml:"dial_timeout"`
}

// ResourceConfig describes one storage resource.
type ResourceConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // vault (default) or zstd
	Path    string `yaml:"path"`
	Offline bool   `yaml:"offline"`
	Fsync   bool   `yaml:"fsync"`
}

// PolicyConfig holds authorization and execution defaults.
type PolicyConfig struct {
	Admins      []string `yaml:"admins"`
	Stale       string   `yaml:"stale"`        // reject (default) or allow
	AtomicMulti bool     `yaml:"atomic_multi"` // all-replica batches run all-or-nothing
}

// TransferConfig holds configuration for moving bytes.
type TransferConfig struct {
	BufferSize       bytesize.Size `yaml:"buffer_size"`
	Digest           string        `yaml:"digest"`
	Parallelism      int           `yaml:"parallelism"`
	DigestOnRegister bool          `yaml:"digest_on_register"`
	VerifyReadback   bool          `yaml:"verify_readback"`
	CleanupTimeout   string        `yaml:"cleanup_timeout"`
}

// LogConfig holds logging configuration. File enables a rotating JSON log
// in addition to console output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the configuration used when no file is given: an
// in-memory catalog and no resources.
func Default() *Config {
	cfg := &Config{Catalog: CatalogConfig{Backend: BackendMemory}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8470"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "30s"
	}

	if c.Catalog.Backend == "" {
		c.Catalog.Backend = BackendBadger
	}
	if c.Catalog.Backend == BackendBadger && c.Catalog.Badger.Dir == "" && !c.Catalog.Badger.InMemory {
		c.Catalog.Badger.Dir = "/var/lib/phymv/catalog"
	}
	c.Catalog.Badger.Dir = expandHome(c.Catalog.Badger.Dir)
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = 3
	}
	if c.Catalog.RetryBackoff == "" {
		c.Catalog.RetryBackoff = "20ms"
	}

	for i := range c.Resources {
		if c.Resources[i].Kind == "" {
			c.Resources[i].Kind = KindVault
		}
		c.Resources[i].Path = expandHome(c.Resources[i].Path)
	}

	if c.Policy.Stale == "" {
		c.Policy.Stale = string(policy.StaleReject)
	}

	if c.Transfer.BufferSize == 0 {
		c.Transfer.BufferSize = bytesize.Size(4 * bytesize.MB)
	}
	if c.Transfer.Digest == "" {
		c.Transfer.Digest = string(checksum.DefaultScheme)
	}
	if c.Transfer.Parallelism == 0 {
		c.Transfer.Parallelism = 4
	}
	if c.Transfer.CleanupTimeout == "" {
		c.Transfer.CleanupTimeout = "30s"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.File = expandHome(c.Log.File)
	if c.Log.File != "" {
		if c.Log.MaxSizeMB == 0 {
			c.Log.MaxSizeMB = 100
		}
		if c.Log.MaxBackups == 0 {
			c.Log.MaxBackups = 5
		}
		if c.Log.MaxAgeDays == 0 {
			c.Log.MaxAgeDays = 28
		}
	}
}

// expandHome expands a leading "~/" to the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, p[2:])
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}
	if _, err := c.Server.ShutdownTimeoutDuration(); err != nil {
		return err
	}

	switch c.Catalog.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Catalog.Badger.Dir == "" && !c.Catalog.Badger.InMemory {
			return fmt.Errorf("catalog.badger.dir is required")
		}
	case BackendRedis:
		if c.Catalog.Redis.Addr == "" {
			return fmt.Errorf("catalog.redis.addr is required")
		}
		if _, err := parseDuration("catalog.redis.dial_timeout", c.Catalog.Redis.DialTimeout); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown catalog.backend %q", c.Catalog.Backend)
	}
	if c.Catalog.MaxRetries < 0 {
		return fmt.Errorf("catalog.max_retries cannot be negative")
	}
	if _, err := c.Catalog.RetryBackoffDuration(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if r.Name == "" {
			return fmt.Errorf("resources[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate resource name %q", r.Name)
		}
		seen[r.Name] = true
		if r.Path == "" {
			return fmt.Errorf("resource %s: path is required", r.Name)
		}
		if r.Kind != KindVault && r.Kind != KindZstd {
			return fmt.Errorf("resource %s: unknown kind %q", r.Name, r.Kind)
		}
	}

	if _, err := policy.ParseStalePolicy(c.Policy.Stale); err != nil {
		return fmt.Errorf("invalid policy.stale: %w", err)
	}

	if c.Transfer.BufferSize < 0 {
		return fmt.Errorf("transfer.buffer_size cannot be negative")
	}
	if _, err := checksum.ParseScheme(c.Transfer.Digest); err != nil {
		return fmt.Errorf("invalid transfer.digest: %w", err)
	}
	if c.Transfer.Parallelism < 1 {
		return fmt.Errorf("transfer.parallelism must be at least 1")
	}
	if _, err := c.Transfer.CleanupTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: cannot be negative", field)
	}
	return d, nil
}

// ShutdownTimeoutDuration parses server.shutdown_timeout.
func (s ServerConfig) ShutdownTimeoutDuration() (time.Duration, error) {
	return parseDuration("server.shutdown_timeout", s.ShutdownTimeout)
}

// RetryBackoffDuration parses catalog.retry_backoff.
func (c CatalogConfig) RetryBackoffDuration() (time.Duration, error) {
	return parseDuration("catalog.retry_backoff", c.RetryBackoff)
}

// DialTimeoutDuration parses catalog.redis.dial_timeout.
func (r RedisConfig) DialTimeoutDuration() (time.Duration, error) {
	return parseDuration("catalog.redis.dial_timeout", r.DialTimeout)
}

// CleanupTimeoutDuration parses transfer.cleanup_timeout.
func (t TransferConfig) CleanupTimeoutDuration() (time.Duration, error) {
	return parseDuration("transfer.cleanup_timeout", t.CleanupTimeout)
}
