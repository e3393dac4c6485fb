package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/importmap"
	"github.com/toastdotdev/toast/internal/logging"
)

func load(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return LoadFrom(v)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Build.InputDir)
	assert.Equal(t, "public", cfg.Build.OutputDir)
	assert.Equal(t, "src", cfg.Build.SrcDir)
	assert.Equal(t, ".tmp", cfg.Build.TmpDir)
	assert.Equal(t, importmap.DefaultPath, cfg.Build.ImportMap)
	assert.Equal(t, []string{".js"}, cfg.Build.Extensions)
	assert.Empty(t, cfg.Build.Exclude)
	assert.Equal(t, 4, cfg.Build.Workers)
	assert.Zero(t, cfg.Build.DrainTimeout)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, ".toast/cache", cfg.Cache.Dir)
	assert.Equal(t, 1024, cfg.Cache.MemoryEntries)
	assert.True(t, cfg.Cache.Remote.UseSSL)

	assert.Equal(t, 64, cfg.Feed.MaxConnections)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	cfg, err := load(t, `
build:
  input_dir: site
  output_dir: dist
  extensions: [".js", ".mjs"]
  exclude: ["**/*.test.js"]
  workers: 8
  drain_timeout: 30s
cache:
  enabled: false
  memory_entries: 10
  remote:
    endpoint: s3.example.com
    bucket: artifacts
    prefix: toast
feed:
  listen: 127.0.0.1:7777
watch:
  debounce: 250ms
log:
  level: debug
  format: json
`)
	require.NoError(t, err)

	assert.Equal(t, "site", cfg.Build.InputDir)
	assert.Equal(t, "dist", cfg.Build.OutputDir)
	assert.Equal(t, []string{".js", ".mjs"}, cfg.Build.Extensions)
	assert.Equal(t, []string{"**/*.test.js"}, cfg.Build.Exclude)
	assert.Equal(t, 8, cfg.Build.Workers)
	assert.Equal(t, 30*time.Second, cfg.Build.DrainTimeout)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "127.0.0.1:7777", cfg.Feed.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)

	opts := cfg.BuildOptions()
	assert.Equal(t, "site", opts.InputDir)
	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, 10, opts.MemoryEntries)
	assert.Equal(t, 30*time.Second, opts.DrainTimeout)

	store := cfg.ObjectStoreConfig()
	assert.Equal(t, "s3.example.com", store.Endpoint)
	assert.Equal(t, "artifacts", store.Bucket)
	assert.Equal(t, "toast", store.Prefix)
	assert.True(t, store.UseSSL)

	logCfg := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)
}

func TestLoadSplitsCommaSeparatedLists(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("build.extensions", []string{".js, .mjs"})

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, []string{".js", ".mjs"}, cfg.Build.Extensions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		section string
	}{
		{"empty input dir", func(c *Config) { c.Build.InputDir = " " }, "build"},
		{"empty output dir", func(c *Config) { c.Build.OutputDir = "" }, "build"},
		{"absolute src dir", func(c *Config) { c.Build.SrcDir = "/abs/src" }, "build"},
		{"escaping tmp dir", func(c *Config) { c.Build.TmpDir = "../tmp" }, "build"},
		{"escaping import map", func(c *Config) { c.Build.ImportMap = "web_modules/../../map.json" }, "build"},
		{"empty import map", func(c *Config) { c.Build.ImportMap = "" }, "build"},
		{"no extensions", func(c *Config) { c.Build.Extensions = nil }, "build"},
		{"extension without dot", func(c *Config) { c.Build.Extensions = []string{"js"} }, "build"},
		{"bare dot extension", func(c *Config) { c.Build.Extensions = []string{"."} }, "build"},
		{"zero workers", func(c *Config) { c.Build.Workers = 0 }, "build"},
		{"negative drain timeout", func(c *Config) { c.Build.DrainTimeout = -time.Second }, "build"},
		{"negative memory entries", func(c *Config) { c.Cache.MemoryEntries = -1 }, "cache"},
		{"escaping cache dir", func(c *Config) { c.Cache.Dir = "../cache" }, "cache"},
		{"remote without bucket", func(c *Config) { c.Cache.Remote.Endpoint = "s3.example.com" }, "cache"},
		{"remote without endpoint", func(c *Config) { c.Cache.Remote.Bucket = "artifacts" }, "cache"},
		{"negative max connections", func(c *Config) { c.Feed.MaxConnections = -1 }, "feed"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Millisecond }, "watch"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(t, "")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

			var te *errors.Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, errors.ErrCodeConfigInvalid, te.Code)
			assert.Equal(t, tt.section, te.Context["section"])
		})
	}
}

func TestValidateAcceptsNestedRelativePaths(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err)

	cfg.Build.SrcDir = "app/src"
	cfg.Build.TmpDir = "./build/.tmp"
	cfg.Build.OutputDir = "/var/www/site"
	cfg.Cache.Dir = "/var/cache/toast"
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	_, err := load(t, "build:\n  workers: 0\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestCacheDir(t *testing.T) {
	cfg, err := load(t, "build:\n  input_dir: site\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("site", ".toast", "cache"), cfg.CacheDir())

	cfg.Cache.Dir = "/var/cache/toast"
	assert.Equal(t, "/var/cache/toast", cfg.CacheDir())
}
