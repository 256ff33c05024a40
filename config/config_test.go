package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestNewConfig_WithNilOverride tests that NewConfig creates a config with all default values
// when no override is provided.
func TestNewConfig_WithNilOverride(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(nil)

	require.NotNil(t, cfg)
	assert.Equal(t, NewDefaultConfig(), cfg, "must use default values when no config provided")
	assert.NoError(t, cfg.Validate())
}

// TestNewConfig_WithAllOverride tests that NewConfig properly applies overrides while
// preserving defaults for unset fields.
func TestNewConfig_WithAllOverride(t *testing.T) {
	t.Parallel()

	override := createOverride()
	override.LogLvl = util.Pointer(TraceVerbose)
	cfg := NewConfig(override)

	expCfg := &Config{
		MountOptions: MountOptions{
			FsName: "test_fs",
			Name:   "test_name",
			Debug:  true,
		},
		LogLvl:           util.TraceLevel,
		RemoteType:       *override.RemoteType,
		RemoteURL:        *override.RemoteURL,
		RemoteHeaders:    map[string]string{"X-Token": "abc"},
		DataDir:          *override.DataDir,
		CacheDir:         *override.CacheDir,
		ListingTimeout:   *override.ListingTimeout,
		RequestTimeout:   *override.RequestTimeout,
		RetryMaxAttempts: *override.RetryMaxAttempts,
		RetryInitialWait: *override.RetryInitialWait,
		SyncPolicy:       SyncPolicyReject,
		CreateStubs:      !DefaultCreateStubs,
		SyncOnReaddir:    !DefaultSyncOnReaddir,
		AttrTimeout:      *override.AttrTimeout,
		EntryTimeout:     *override.EntryTimeout,
	}
	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields")
}

func TestConfig_Merge_LogLvlConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		verboseValue  int
		expectedLevel util.LogLevel
	}{
		{"verbose_1_error", 1, util.ErrorLevel},
		{"verbose_2_warn", 2, util.WarnLevel},
		{"verbose_3_info", 3, util.InfoLevel},
		{"verbose_4_debug", 4, util.DebugLevel},
		{"verbose_5_trace", 5, util.TraceLevel},
		{"verbose_0_clamped_to_1", 0, util.ErrorLevel},
		{"verbose_100_clamped_to_5", 100, util.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override := &ConfigOverride{
				LogLvl: &tt.verboseValue,
			}

			cfg := NewConfig(override)

			assert.Equal(t, tt.expectedLevel, cfg.LogLvl,
				"CLI verbose %d should map to util.LogLevel %v", tt.verboseValue, tt.expectedLevel)
		})
	}
}

func TestConfig_Merge_PartialOverride(t *testing.T) {
	t.Parallel()

	override := &ConfigOverride{
		FsName:    util.Pointer("test_fs"),
		RemoteURL: util.Pointer("http://remote.test"),
	}
	cfg := NewConfig(override)

	expCfg := NewDefaultConfig()
	expCfg.FsName = "test_fs"
	expCfg.RemoteURL = "http://remote.test"

	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields and leave rest default")
}

func TestConfig_Merge_HeadersCopied(t *testing.T) {
	t.Parallel()

	headers := map[string]string{"A": "1"}
	cfg := NewConfig(&ConfigOverride{RemoteHeaders: headers})
	headers["A"] = "2"

	assert.Equal(t, "1", cfg.RemoteHeaders["A"], "config must not alias override maps")
}

func TestConfig_Durations(t *testing.T) {
	t.Parallel()

	cfg := Config{
		ListingTimeout: 1.5, RequestTimeout: 0.25, RetryInitialWait: 0.1,
		AttrTimeout: 2, EntryTimeout: 0.5, DataDir: "/data",
	}

	assert.Equal(t, 1500*time.Millisecond, cfg.ListingTimeoutDuration())
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeoutDuration())
	assert.Equal(t, 100*time.Millisecond, cfg.RetryInitialWaitDuration())
	assert.Equal(t, 2*time.Second, cfg.AttrTimeoutDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.EntryTimeoutDuration())
	assert.Equal(t, filepath.Join("/data", "mirror.db"), cfg.DBPath())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad sync policy", func(c *Config) { c.SyncPolicy = "drop" }, "invalid sync_policy"},
		{"no remote", func(c *Config) { c.RemoteURL = "" }, "remote_url"},
		{"no cache dir", func(c *Config) { c.CacheDir = "" }, "cache_dir"},
		{"zero attempts", func(c *Config) { c.RetryMaxAttempts = 0 }, "retry_max_attempts"},
		{"zero timeout", func(c *Config) { c.ListingTimeout = 0 }, "listing_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfigOverrideFile_Valid(t *testing.T) {
	t.Parallel()

	type tc struct {
		ext   string
		build func() (*ConfigOverride, []byte)
	}

	cases := []tc{
		{
			ext: ".yaml",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".yml",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".json",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := json.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
	}

	for _, c := range cases {
		name := "valid" + c.ext
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			override, data := c.build()
			dir := t.TempDir()
			path := filepath.Join(dir, "override"+c.ext)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			loaded, err := LoadConfigOverrideFile(path)

			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, *override, *loaded)
		})
	}
}

func TestLoadConfigOverrideFile_HandWrittenYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mirror.yaml")
	data := []byte("remote_url: http://ioschallenge.test\nsync_policy: reject\ncreate_stubs: false\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := NewConfigFromFile(path)

	require.NoError(t, err)
	assert.Equal(t, "http://ioschallenge.test", cfg.RemoteURL)
	assert.Equal(t, SyncPolicyReject, cfg.SyncPolicy)
	assert.False(t, cfg.CreateStubs)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout, "unset fields keep defaults")
}

// TestLoadConfigOverrideFile_NonExistentFile tests error handling
// when trying to load a file that doesn't exist.
func TestLoadConfigOverrideFile_NonExistentFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "does_not_exist.yaml")

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err), "expected not exist error, got %v", err)
}

// TestLoadConfigOverrideFile_UnsupportedExtension tests error handling
// for file extensions that aren't supported (.txt, .xml, etc).
func TestLoadConfigOverrideFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "override.txt")
	require.NoError(t, os.WriteFile(path, []byte("remote_url: x"), 0o600))

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config file extension")
}

// TestNewConfigFromFile_FileError tests that file loading errors
// are properly propagated by the convenience function.
func TestNewConfigFromFile_FileError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := NewConfigFromFile(path)
	require.Error(t, err)
}

// createOverride makes a ConfigOverride with all non-default values
func createOverride() *ConfigOverride {
	testLogVerbose := TraceVerbose
	if DefaultLogLvl == util.TraceLevel {
		testLogVerbose = DebugVerbose
	}
	return &ConfigOverride{
		FsName:           util.Pointer("test_fs"),
		Name:             util.Pointer("test_name"),
		Debug:            util.Pointer(true),
		LogLvl:           util.Pointer(testLogVerbose),
		RemoteType:       util.Pointer("test"),
		RemoteURL:        util.Pointer("http://remote.test"),
		RemoteHeaders:    map[string]string{"X-Token": "abc"},
		DataDir:          util.Pointer("/tmp/data"),
		CacheDir:         util.Pointer("/tmp/cache"),
		ListingTimeout:   util.Pointer(DefaultListingTimeout + 1),
		RequestTimeout:   util.Pointer(DefaultRequestTimeout + 1),
		RetryMaxAttempts: util.Pointer(DefaultRetryMaxAttempts + 1),
		RetryInitialWait: util.Pointer(DefaultRetryInitialWait + 1),
		SyncPolicy:       util.Pointer(SyncPolicyReject),
		CreateStubs:      util.Pointer(!DefaultCreateStubs),
		SyncOnReaddir:    util.Pointer(!DefaultSyncOnReaddir),
		AttrTimeout:      util.Pointer(DefaultAttrTimeout + 1),
		EntryTimeout:     util.Pointer(DefaultEntryTimeout + 1),
	}
}
