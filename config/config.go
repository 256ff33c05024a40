package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/webmirror/internal/util"
	"gopkg.in/yaml.v3"
)

// CLI log verbosity values accepted by [ConfigOverride.LogLvl]
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// SyncPolicy decides what happens when a sync is requested for a node that
// already has one in flight
type SyncPolicy = string

const (
	SyncPolicyQueue  SyncPolicy = "queue"  // wait for the in-flight sync
	SyncPolicyReject SyncPolicy = "reject" // fail fast with ErrSyncInProgress
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "webmirror"
	DefaultName   = "webmirror"

	DefaultLogLvl = util.InfoLevel

	DefaultRemoteType = "http"
	DefaultRemoteURL  = "http://localhost:8080"

	// DefaultListingTimeout bounds the directory listing call of a sync
	DefaultListingTimeout = 30.0
	// DefaultRequestTimeout bounds each metadata/content/push call
	DefaultRequestTimeout = 15.0

	DefaultRetryMaxAttempts = 3
	DefaultRetryInitialWait = 0.1

	DefaultSyncPolicy    = SyncPolicyQueue
	DefaultCreateStubs   = true
	DefaultSyncOnReaddir = false

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	dbFileName = "mirror.db"
)

// Config contains runtime configuration values for the mirror.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	RemoteType    string            // Registered remote provider type (Default "http")
	RemoteURL     string            // Base URL of the remote store
	RemoteHeaders map[string]string // Extra headers sent with every remote request

	DataDir  string // Directory holding the node database (Default <UserConfigDir>/webmirror)
	CacheDir string // Directory holding pinned content (Default <UserCacheDir>/webmirror/content)

	ListingTimeout   float64 // Seconds; a timed out listing aborts the sync (Default 30)
	RequestTimeout   float64 // Seconds per metadata/content/push call (Default 15)
	RetryMaxAttempts int     // Attempts per remote call including the first (Default 3)
	RetryInitialWait float64 // Seconds before the first retry; doubles each attempt (Default 0.1)

	SyncPolicy    SyncPolicy // "queue" or "reject" (Default "queue")
	CreateStubs   bool       // Insert Unset placeholders for new names before fetching metadata (Default true)
	SyncOnReaddir bool       // Refresh a directory from the remote when the mount lists it (Default false)

	AttrTimeout  float64 // FUSE attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // FUSE directory entry cache timeout in seconds (Default 1.0)
}

// DBPath returns the location of the node database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, dbFileName)
}

// ListingTimeoutDuration returns ListingTimeout as a time.Duration
func (c *Config) ListingTimeoutDuration() time.Duration {
	return seconds(c.ListingTimeout)
}

// RequestTimeoutDuration returns RequestTimeout as a time.Duration
func (c *Config) RequestTimeoutDuration() time.Duration {
	return seconds(c.RequestTimeout)
}

// RetryInitialWaitDuration returns RetryInitialWait as a time.Duration
func (c *Config) RetryInitialWaitDuration() time.Duration {
	return seconds(c.RetryInitialWait)
}

// AttrTimeoutDuration returns AttrTimeout as a time.Duration
func (c *Config) AttrTimeoutDuration() time.Duration {
	return seconds(c.AttrTimeout)
}

// EntryTimeoutDuration returns EntryTimeout as a time.Duration
func (c *Config) EntryTimeoutDuration() time.Duration {
	return seconds(c.EntryTimeout)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	// LogLvl is the CLI style verbosity between 1 (error) and 5 (trace)
	LogLvl *int `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`

	RemoteType    *string           `yaml:"remote_type,omitempty" json:"remote_type,omitempty"`
	RemoteURL     *string           `yaml:"remote_url,omitempty" json:"remote_url,omitempty"`
	RemoteHeaders map[string]string `yaml:"remote_headers,omitempty" json:"remote_headers,omitempty"`

	DataDir  *string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	CacheDir *string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`

	ListingTimeout   *float64 `yaml:"listing_timeout,omitempty" json:"listing_timeout,omitempty"`
	RequestTimeout   *float64 `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`
	RetryMaxAttempts *int     `yaml:"retry_max_attempts,omitempty" json:"retry_max_attempts,omitempty"`
	RetryInitialWait *float64 `yaml:"retry_initial_wait,omitempty" json:"retry_initial_wait,omitempty"`

	SyncPolicy    *string `yaml:"sync_policy,omitempty" json:"sync_policy,omitempty"`
	CreateStubs   *bool   `yaml:"create_stubs,omitempty" json:"create_stubs,omitempty"`
	SyncOnReaddir *bool   `yaml:"sync_on_readdir,omitempty" json:"sync_on_readdir,omitempty"`

	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:           DefaultLogLvl,
		RemoteType:       DefaultRemoteType,
		RemoteURL:        DefaultRemoteURL,
		DataDir:          defaultDataDir(),
		CacheDir:         defaultCacheDir(),
		ListingTimeout:   DefaultListingTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		RetryMaxAttempts: DefaultRetryMaxAttempts,
		RetryInitialWait: DefaultRetryInitialWait,
		SyncPolicy:       DefaultSyncPolicy,
		CreateStubs:      DefaultCreateStubs,
		SyncOnReaddir:    DefaultSyncOnReaddir,
		AttrTimeout:      DefaultAttrTimeout,
		EntryTimeout:     DefaultEntryTimeout,
	}
}

// NewConfig returns the defaults with override applied. A nil override
// yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.LogLvl != nil {
		c.LogLvl = verbosityToLevel(*override.LogLvl)
	}
	if override.RemoteType != nil {
		c.RemoteType = *override.RemoteType
	}
	if override.RemoteURL != nil {
		c.RemoteURL = *override.RemoteURL
	}
	if override.RemoteHeaders != nil {
		c.RemoteHeaders = make(map[string]string, len(override.RemoteHeaders))
		for k, v := range override.RemoteHeaders {
			c.RemoteHeaders[k] = v
		}
	}
	if override.DataDir != nil {
		c.DataDir = *override.DataDir
	}
	if override.CacheDir != nil {
		c.CacheDir = *override.CacheDir
	}
	if override.ListingTimeout != nil {
		c.ListingTimeout = *override.ListingTimeout
	}
	if override.RequestTimeout != nil {
		c.RequestTimeout = *override.RequestTimeout
	}
	if override.RetryMaxAttempts != nil {
		c.RetryMaxAttempts = *override.RetryMaxAttempts
	}
	if override.RetryInitialWait != nil {
		c.RetryInitialWait = *override.RetryInitialWait
	}
	if override.SyncPolicy != nil {
		c.SyncPolicy = *override.SyncPolicy
	}
	if override.CreateStubs != nil {
		c.CreateStubs = *override.CreateStubs
	}
	if override.SyncOnReaddir != nil {
		c.SyncOnReaddir = *override.SyncOnReaddir
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
}

// Validate reports configuration values the mirror cannot run with
func (c *Config) Validate() error {
	switch c.SyncPolicy {
	case SyncPolicyQueue, SyncPolicyReject:
	default:
		return fmt.Errorf("invalid sync_policy %q: must be %q or %q", c.SyncPolicy, SyncPolicyQueue, SyncPolicyReject)
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url must be set")
	}
	if c.DataDir == "" || c.CacheDir == "" {
		return fmt.Errorf("data_dir and cache_dir must be set")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.ListingTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("listing_timeout and request_timeout must be positive")
	}
	return nil
}

// verbosityToLevel converts CLI verbosity (1 error .. 5 trace) into a
// util.LogLevel, clamping out of range values
func verbosityToLevel(v int) util.LogLevel {
	v = max(ErrorVerbose, min(v, TraceVerbose))
	lvls := [...]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[v-1]
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "webmirror")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "webmirror", "content")
}
