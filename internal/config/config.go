// Package config loads the ncmerged server configuration.
//
// Values are resolved in four layers, each overriding the last:
//   - built-in defaults (Default),
//   - an optional YAML file (--config or NCMERGE_CONFIG),
//   - NCMERGE_* environment variables,
//   - command-line flags that were set explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/ncmerge/internal/ctxlog"
)

// Environment variable names.
const (
	EnvConfig         = "NCMERGE_CONFIG"
	EnvListen         = "NCMERGE_LISTEN"
	EnvLogLevel       = "NCMERGE_LOG_LEVEL"
	EnvLogFormat      = "NCMERGE_LOG_FORMAT"
	EnvMaxUploadBytes = "NCMERGE_MAX_UPLOAD_BYTES"
	EnvPartTTL        = "NCMERGE_PART_TTL"
	EnvShards         = "NCMERGE_SHARDS"
)

// Config is the server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	// Default: :8080
	Listen string `yaml:"listen"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// MaxUploadBytes bounds the decoded size of one uploaded part.
	// Default: 256 MiB
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// PartTTL evicts datasets not written for this long. Zero disables
	// eviction.
	// Default: 24h
	PartTTL time.Duration `yaml:"part_ttl"`

	// Shards is the number of lock domains in the part store.
	// Default: 16
	Shards int `yaml:"shards"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:          ":8080",
		Log:             LogConfig{Level: "info", Format: "json"},
		MaxUploadBytes:  256 << 20,
		PartTTL:         24 * time.Hour,
		Shards:          16,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NCMERGE_* variables. getenv returns ""
// for unset variables; pass os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	if v := getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := getenv(EnvMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxUploadBytes, err))
		} else {
			c.MaxUploadBytes = n
		}
	}
	if v := getenv(EnvPartTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvPartTTL, err))
		} else {
			c.PartTTL = d
		}
	}
	if v := getenv(EnvShards); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvShards, err))
		} else {
			c.Shards = n
		}
	}
	return errors.Join(errs...)
}

// RegisterFlags declares the server flags on fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a YAML config file (env "+EnvConfig+")")
	fs.String("listen", d.Listen, "HTTP listen address")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.Int64("max-upload-bytes", d.MaxUploadBytes, "maximum decoded size of one uploaded part")
	fs.Duration("part-ttl", d.PartTTL, "evict datasets idle this long (0 disables)")
	fs.Int("shards", d.Shards, "part store shard count")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout")
}

// ApplyFlags overrides fields from flags that were set on the command line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}
	set("listen", func() (e error) { c.Listen, e = fs.GetString("listen"); return })
	set("log-level", func() (e error) { c.Log.Level, e = fs.GetString("log-level"); return })
	set("log-format", func() (e error) { c.Log.Format, e = fs.GetString("log-format"); return })
	set("max-upload-bytes", func() (e error) { c.MaxUploadBytes, e = fs.GetInt64("max-upload-bytes"); return })
	set("part-ttl", func() (e error) { c.PartTTL, e = fs.GetDuration("part-ttl"); return })
	set("shards", func() (e error) { c.Shards, e = fs.GetInt("shards"); return })
	set("shutdown-timeout", func() (e error) { c.ShutdownTimeout, e = fs.GetDuration("shutdown-timeout"); return })
	return err
}

// Resolve loads the configuration for a parsed flag set: the file named by
// --config or NCMERGE_CONFIG, then the environment, then explicit flags.
// The result is validated.
func Resolve(fs *pflag.FlagSet, getenv func(string) string) (Config, error) {
	path, _ := fs.GetString("config")
	if path == "" {
		path = getenv(EnvConfig)
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if _, err := ctxlog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.PartTTL < 0 {
		errs = append(errs, fmt.Errorf("part_ttl must not be negative, got %v", c.PartTTL))
	}
	if c.Shards <= 0 || c.Shards > 4096 {
		errs = append(errs, fmt.Errorf("shards must be in 1..4096, got %d", c.Shards))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
