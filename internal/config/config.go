// Package config handles the engine's storage root and its config.yaml.
//
// Every project coordinated by windlass gets a storage root (default
// .windlass/) holding the event log, checkpoints, idempotency records,
// locks, dead letter queue, consumer offsets, snapshots, schemas, the
// optional query index and operational logs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRoot is the storage root created next to the caller.
	DefaultRoot = ".windlass"

	configFile = "config.yaml"
)

// Environment knobs. Flags win over env, env wins over config.yaml.
const (
	EnvRoot         = "WINDLASS_ROOT"
	EnvPollInterval = "WINDLASS_LOCK_POLL_INTERVAL"
	EnvLockTimeout  = "WINDLASS_LOCK_TIMEOUT"
	EnvNodeID       = "WINDLASS_NODE_ID"
)

const defaultConfigYAML = `# windlass engine configuration
# How often a blocked lock acquire re-checks the lock.
lock_poll_interval: 100ms

# Default lock acquire timeout when the caller does not pass one.
lock_timeout: 30s

# Snowflake node id (0-1023). Give each host a distinct id if several
# hosts share ids-but-not-storage; a single shared filesystem needs none.
node_id: 0
`

// Duration wraps time.Duration with yaml "100ms"/"30s" string syntax.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config models <root>/config.yaml plus the resolved root itself.
type Config struct {
	Root             string   `yaml:"-"`
	LockPollInterval Duration `yaml:"lock_poll_interval"`
	LockTimeout      Duration `yaml:"lock_timeout"`
	NodeID           int64    `yaml:"node_id"`
}

// Default returns the built-in configuration for a root.
func Default(root string) Config {
	return Config{
		Root:             root,
		LockPollInterval: Duration(100 * time.Millisecond),
		LockTimeout:      Duration(30 * time.Second),
		NodeID:           0,
	}
}

// ResolveRoot picks the storage root: explicit flag value, then
// WINDLASS_ROOT, then the default.
func ResolveRoot(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvRoot); env != "" {
		return env
	}
	return DefaultRoot
}

// Load reads <root>/config.yaml if present, layers env overrides on top of
// the defaults, and validates the result.
func Load(root string) (Config, error) {
	cfg := Default(root)

	data, err := os.ReadFile(filepath.Join(root, configFile))
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", configFile, err)
		}
		cfg.Root = root
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", configFile, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnsureFile writes the default config.yaml if none exists yet.
func (c Config) EnsureFile() error {
	path := filepath.Join(c.Root, configFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", configFile, err)
	}
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("ensure root: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write default %s: %w", configFile, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.LockPollInterval = Duration(d)
	}
	if v := os.Getenv(EnvLockTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
		c.LockTimeout = Duration(d)
	}
	if v := os.Getenv(EnvNodeID); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNodeID, err)
		}
		c.NodeID = n
	}
	return nil
}

func (c Config) validate() error {
	if c.LockPollInterval <= 0 {
		return fmt.Errorf("lock_poll_interval must be positive")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node_id must be in [0, 1023]")
	}
	return nil
}

// Storage layout under the root.

func (c Config) LocksDir() string       { return filepath.Join(c.Root, "locks") }
func (c Config) CheckpointsDir() string { return filepath.Join(c.Root, "checkpoints") }
func (c Config) IdempotencyDir() string { return filepath.Join(c.Root, "idempotency") }
func (c Config) OffsetsDir() string     { return filepath.Join(c.Root, "offsets") }
func (c Config) SchemasDir() string     { return filepath.Join(c.Root, "schemas") }
func (c Config) LogsDir() string        { return filepath.Join(c.Root, "logs") }
func (c Config) DLQPath() string        { return filepath.Join(c.Root, "dlq.log") }
func (c Config) IndexPath() string      { return filepath.Join(c.Root, "index.db") }
