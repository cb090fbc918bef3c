package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

const (
	appName              = "mirror"
	defaultDataDirectory = ".mirror"

	defaultMaxSessions   = 20
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// Duration is a [time.Duration] written as a string such as "30m" in
// configuration files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(data []byte) error {
	v, err := time.ParseDuration(string(data))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", data, err)
	}
	*d = Duration(v)
	return nil
}

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "A duration such as 90s, 30m or 1h30m",
		Examples:    []any{"30m", "1h"},
	}
}

type Options struct {
	DataDirectory string `json:"data_directory,omitempty" jsonschema:"description=Directory for logs and other local state,default=.mirror,example=.mirror"`
	Debug         bool   `json:"debug,omitempty" jsonschema:"description=Enable debug logging,default=false"`
	LogFile       string `json:"log_file,omitempty" jsonschema:"description=Path of the log file; defaults to logs/mirror.log in the data directory"`
}

// CacheOptions bound how many sessions are kept in memory and for how long.
type CacheOptions struct {
	MaxSessions   int      `json:"max_sessions" jsonschema:"description=Maximum number of cached sessions; zero or less disables the limit,default=20"`
	TTL           Duration `json:"ttl" jsonschema:"description=Inactive sessions older than this are dropped; zero disables expiry,default=30m"`
	SweepInterval Duration `json:"sweep_interval" jsonschema:"description=How often the eviction sweep runs,default=1m"`
}

// Config holds the configuration of mirror.
type Config struct {
	Schema  string       `json:"$schema,omitempty"`
	Host    string       `json:"host,omitempty" jsonschema:"description=Address of the agent server,example=unix:///tmp/crush-1000.sock,example=tcp://127.0.0.1:8080"`
	Options Options      `json:"options,omitzero" jsonschema:"description=General options"`
	Cache   CacheOptions `json:"cache,omitzero" jsonschema:"description=Session cache limits"`

	workingDir string
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Options: Options{
			DataDirectory: defaultDataDirectory,
		},
		Cache: CacheOptions{
			MaxSessions:   defaultMaxSessions,
			TTL:           Duration(defaultTTL),
			SweepInterval: Duration(defaultSweepInterval),
		},
	}
}

func (c *Config) WorkingDir() string {
	return c.workingDir
}

// TTL returns the cache TTL as a [time.Duration].
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTL)
}

// SweepInterval returns the eviction interval as a [time.Duration].
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepInterval)
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Host != "" {
		if err := validateHost(c.Host); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative, got %s", time.Duration(c.Cache.TTL)))
	}
	sweeps := c.Cache.MaxSessions > 0 || c.Cache.TTL > 0
	if sweeps && c.Cache.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache.sweep_interval must be positive, got %s", time.Duration(c.Cache.SweepInterval)))
	}
	if c.Options.DataDirectory == "" {
		errs = append(errs, errors.New("options.data_directory must not be empty"))
	}
	return errors.Join(errs...)
}

func validateHost(host string) error {
	scheme, addr, ok := strings.Cut(host, "://")
	if !ok || addr == "" {
		return fmt.Errorf("invalid host %q: expected scheme://address", host)
	}
	switch scheme {
	case "unix", "npipe":
		return nil
	case "tcp":
		if _, err := url.Parse("tcp://" + addr); err != nil {
			return fmt.Errorf("invalid host %q: %w", host, err)
		}
		return nil
	default:
		return fmt.Errorf("invalid host %q: unsupported scheme %q", host, scheme)
	}
}
