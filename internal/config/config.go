// Package config loads toast's configuration using Viper from .toast.yml,
// TOAST_ environment variables, a .env file and command-line flags.
//
// Sections cover the project layout and compile pool (build), artifact
// persistence (cache), the route-data feed server (feed), watch mode (watch)
// and logging (log).
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/toastdotdev/toast/internal/build"
	"github.com/toastdotdev/toast/internal/cache"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/importmap"
	"github.com/toastdotdev/toast/internal/logging"
)

type Config struct {
	Build BuildConfig `mapstructure:"build" yaml:"build"`
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
	Feed  FeedConfig  `mapstructure:"feed" yaml:"feed"`
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

type BuildConfig struct {
	InputDir     string        `mapstructure:"input_dir" yaml:"input_dir"`
	OutputDir    string        `mapstructure:"output_dir" yaml:"output_dir"`
	SrcDir       string        `mapstructure:"src_dir" yaml:"src_dir"`
	TmpDir       string        `mapstructure:"tmp_dir" yaml:"tmp_dir"`
	ImportMap    string        `mapstructure:"import_map" yaml:"import_map"`
	Extensions   []string      `mapstructure:"extensions" yaml:"extensions"`
	Exclude      []string      `mapstructure:"exclude" yaml:"exclude"`
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"`
}

type CacheConfig struct {
	Enabled       bool              `mapstructure:"enabled" yaml:"enabled"`
	Dir           string            `mapstructure:"dir" yaml:"dir"`
	MemoryEntries int               `mapstructure:"memory_entries" yaml:"memory_entries"`
	Remote        RemoteCacheConfig `mapstructure:"remote" yaml:"remote"`
}

// RemoteCacheConfig points the artifact cache at an S3-compatible bucket.
// An empty endpoint keeps the cache on local disk.
type RemoteCacheConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"-"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

type FeedConfig struct {
	Listen         string `mapstructure:"listen" yaml:"listen"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	def := build.DefaultOptions()

	v.SetDefault("build.input_dir", def.InputDir)
	v.SetDefault("build.output_dir", def.OutputDir)
	v.SetDefault("build.src_dir", def.SrcDir)
	v.SetDefault("build.tmp_dir", def.TmpDir)
	v.SetDefault("build.import_map", importmap.DefaultPath)
	v.SetDefault("build.extensions", def.Extensions)
	v.SetDefault("build.exclude", []string{})
	v.SetDefault("build.workers", def.Workers)
	v.SetDefault("build.drain_timeout", time.Duration(0))

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", ".toast/cache")
	v.SetDefault("cache.memory_entries", 1024)
	v.SetDefault("cache.remote.use_ssl", true)

	v.SetDefault("feed.listen", "")
	v.SetDefault("feed.max_connections", 64)

	v.SetDefault("watch.debounce", 100*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration held by the global viper instance.
func Load() (*Config, error) {
	SetDefaults(viper.GetViper())
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v. Defaults must
// already be registered.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// A comma separated TOAST_BUILD_EXTENSIONS arrives as a single element.
	config.Build.Extensions = splitList(config.Build.Extensions)
	config.Build.Exclude = splitList(config.Build.Exclude)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values for consistency and safety.
func (c *Config) Validate() error {
	if err := validateBuildConfig(&c.Build); err != nil {
		return withSection(err, "build")
	}
	if err := validateCacheConfig(&c.Cache); err != nil {
		return withSection(err, "cache")
	}
	if c.Feed.MaxConnections < 0 {
		return withSection(invalid("max_connections must not be negative"), "feed")
	}
	if c.Watch.Debounce < 0 {
		return withSection(invalid("debounce must not be negative"), "watch")
	}
	if err := validateLogConfig(&c.Log); err != nil {
		return withSection(err, "log")
	}
	return nil
}

// BuildOptions converts the build and cache sections into orchestrator
// options. The artifact store is attached by the caller.
func (c *Config) BuildOptions() build.Options {
	return build.Options{
		InputDir:      c.Build.InputDir,
		OutputDir:     c.Build.OutputDir,
		SrcDir:        c.Build.SrcDir,
		TmpDir:        c.Build.TmpDir,
		ImportMap:     c.Build.ImportMap,
		Extensions:    c.Build.Extensions,
		Exclude:       c.Build.Exclude,
		Workers:       c.Build.Workers,
		DrainTimeout:  c.Build.DrainTimeout,
		MemoryEntries: c.Cache.MemoryEntries,
	}
}

// ObjectStoreConfig returns the remote cache settings.
func (c *Config) ObjectStoreConfig() cache.ObjectStoreConfig {
	r := c.Cache.Remote
	return cache.ObjectStoreConfig{
		Endpoint:  r.Endpoint,
		Region:    r.Region,
		AccessKey: r.AccessKey,
		SecretKey: r.SecretKey,
		Bucket:    r.Bucket,
		Prefix:    r.Prefix,
		UseSSL:    r.UseSSL,
	}
}

// CacheDir resolves the local cache directory against the input directory.
func (c *Config) CacheDir() string {
	if filepath.IsAbs(c.Cache.Dir) {
		return c.Cache.Dir
	}
	return filepath.Join(c.Build.InputDir, c.Cache.Dir)
}

// LoggerConfig returns the logger settings. The level was checked by Validate.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.Log.Format
	return cfg
}

func validateBuildConfig(config *BuildConfig) error {
	if strings.TrimSpace(config.InputDir) == "" {
		return invalid("input_dir must not be empty")
	}
	if strings.TrimSpace(config.OutputDir) == "" {
		return invalid("output_dir must not be empty")
	}

	relative := []struct{ key, value string }{
		{"src_dir", config.SrcDir},
		{"tmp_dir", config.TmpDir},
		{"import_map", config.ImportMap},
	}
	for _, p := range relative {
		if err := validateRelativePath(p.value); err != nil {
			return err.WithContext("key", p.key)
		}
	}

	if len(config.Extensions) == 0 {
		return invalid("at least one module extension is required")
	}
	for _, ext := range config.Extensions {
		if len(ext) < 2 || !strings.HasPrefix(ext, ".") || strings.ContainsAny(ext, `/\`) {
			return invalid("extension " + ext + " must look like .js").WithContext("extension", ext)
		}
	}

	if config.Workers < 1 {
		return invalid("workers must be at least 1").WithContext("workers", config.Workers)
	}
	if config.DrainTimeout < 0 {
		return invalid("drain_timeout must not be negative")
	}
	return nil
}

func validateCacheConfig(config *CacheConfig) error {
	if config.MemoryEntries < 0 {
		return invalid("memory_entries must not be negative")
	}
	if config.Enabled && config.Remote.Endpoint == "" {
		if strings.TrimSpace(config.Dir) == "" {
			return invalid("dir must not be empty when the cache is enabled")
		}
		if strings.Contains(filepath.ToSlash(filepath.Clean(config.Dir)), "../") {
			return invalid("dir contains path traversal: " + config.Dir)
		}
	}
	if config.Remote.Endpoint != "" && config.Remote.Bucket == "" {
		return invalid("remote.bucket is required with remote.endpoint")
	}
	if config.Remote.Bucket != "" && config.Remote.Endpoint == "" {
		return invalid("remote.endpoint is required with remote.bucket")
	}
	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "invalid log level")
	}
	switch config.Format {
	case "", "text", "json":
		return nil
	default:
		return invalid("format must be text or json").WithContext("format", config.Format)
	}
}

// validateRelativePath rejects empty, absolute and escaping paths.
func validateRelativePath(path string) *errors.Error {
	if strings.TrimSpace(path) == "" {
		return invalid("empty path")
	}
	if filepath.IsAbs(path) {
		return invalid("path should be relative: " + path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return invalid("path contains traversal: " + path)
	}
	return nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func invalid(message string) *errors.Error {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid, message)
}

func withSection(err error, section string) error {
	return errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, section+" config").
		WithContext("section", section)
}
