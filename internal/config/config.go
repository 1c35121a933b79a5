package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pwnycloudd configuration
type Config struct {
	Source SourceConfig `yaml:"source"`
	Remote RemoteConfig `yaml:"remote"`
	Backup BackupConfig `yaml:"backup"`
	State  StateConfig  `yaml:"state"`
	Serve  ServeConfig  `yaml:"serve"`
}

// SourceConfig configures the watched handshake directory
type SourceConfig struct {
	HandshakesDir string   `yaml:"handshakes_dir"`
	MinSize       int64    `yaml:"min_size"`
	Extensions    []string `yaml:"extensions"`
}

// RemoteConfig configures the rclone destination
type RemoteConfig struct {
	Name           string   `yaml:"name"`
	Path           string   `yaml:"path"`
	HostSubdir     bool     `yaml:"host_subdir"`
	RcloneConfig   string   `yaml:"rclone_config"`
	BandwidthLimit string   `yaml:"bandwidth_limit"`
	ExtraArgs      []string `yaml:"extra_args"`
}

// BackupConfig configures scheduling and run behavior
type BackupConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Debounce         time.Duration `yaml:"debounce"`
	Retries          int           `yaml:"retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	StuckLockTimeout time.Duration `yaml:"stuck_lock_timeout"`
	TransferTimeout  time.Duration `yaml:"transfer_timeout"`
	TestMode         bool          `yaml:"test_mode"`
}

// StateConfig configures local state storage
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// ServeConfig configures the control plane HTTP server
type ServeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

const (
	// MinInterval is the floor applied to backup.interval to avoid
	// pathological rapid-fire scheduling.
	MinInterval = time.Minute

	DefaultInterval         = time.Hour
	DefaultDebounce         = 5 * time.Minute
	DefaultRetries          = 3
	DefaultRetryBackoff     = 5 * time.Second
	DefaultStuckLockTimeout = 15 * time.Minute
	DefaultTransferTimeout  = 2 * time.Minute
)

// DefaultExtensions are the capture file suffixes tracked when the config
// does not override them. Metadata files created alongside a capture are
// part of the set so they travel with it.
var DefaultExtensions = []string{
	".pcap",
	".pcapng",
	".22000",
	".hccapx",
	".hash",
	".net",
	".json",
	".gps",
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Source.HandshakesDir = os.ExpandEnv(c.Source.HandshakesDir)
	c.Remote.Name = os.ExpandEnv(c.Remote.Name)
	c.Remote.Path = os.ExpandEnv(c.Remote.Path)
	c.Remote.RcloneConfig = os.ExpandEnv(c.Remote.RcloneConfig)
	c.State.Dir = os.ExpandEnv(c.State.Dir)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Backup.Interval == 0 {
		c.Backup.Interval = DefaultInterval
	}
	if c.Backup.Interval < MinInterval {
		c.Backup.Interval = MinInterval
	}
	if c.Backup.Debounce == 0 {
		c.Backup.Debounce = DefaultDebounce
	}
	if c.Backup.Retries == 0 {
		c.Backup.Retries = DefaultRetries
	}
	if c.Backup.RetryBackoff == 0 {
		c.Backup.RetryBackoff = DefaultRetryBackoff
	}
	if c.Backup.StuckLockTimeout == 0 {
		c.Backup.StuckLockTimeout = DefaultStuckLockTimeout
	}
	if c.Backup.TransferTimeout == 0 {
		c.Backup.TransferTimeout = DefaultTransferTimeout
	}
	if c.Remote.Path == "" {
		c.Remote.Path = "handshakes"
	}
	if len(c.Source.Extensions) == 0 {
		c.Source.Extensions = DefaultExtensions
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate source config
	if c.Source.HandshakesDir == "" {
		return fmt.Errorf("source.handshakes_dir is required")
	}
	if !filepath.IsAbs(c.Source.HandshakesDir) {
		return fmt.Errorf("source.handshakes_dir must be an absolute path: %s", c.Source.HandshakesDir)
	}
	if c.Source.MinSize < 0 {
		return fmt.Errorf("source.min_size must not be negative")
	}

	// Validate remote config
	if c.Remote.Name == "" {
		return fmt.Errorf("remote.name is required")
	}

	// Validate state config
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}
	if !filepath.IsAbs(c.State.Dir) {
		return fmt.Errorf("state.dir must be an absolute path: %s", c.State.Dir)
	}

	// Validate backup config
	if c.Backup.Retries < 1 {
		return fmt.Errorf("backup.retries must be at least 1")
	}
	if c.Backup.StuckLockTimeout < time.Minute {
		return fmt.Errorf("backup.stuck_lock_timeout must be at least one minute")
	}

	// Validate serve config if enabled
	if c.Serve.Enabled {
		if c.Serve.ListenAddr == "" {
			return fmt.Errorf("serve.listen_addr is required when serve is enabled")
		}
	}

	return nil
}

// ManifestPath returns the path to the upload manifest file
func (c *Config) ManifestPath() string {
	return filepath.Join(c.State.Dir, "manifest.json")
}

// RemoteTarget returns the rclone destination for uploads, optionally
// suffixed with the local hostname so multiple units can share a remote
// without clobbering each other.
func (c *Config) RemoteTarget() string {
	target := fmt.Sprintf("%s:%s", c.Remote.Name, c.Remote.Path)
	if c.Remote.HostSubdir {
		if host, err := os.Hostname(); err == nil && host != "" {
			target = target + "/" + host
		}
	}
	return target
}
