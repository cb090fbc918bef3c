package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/qjebbs/go-jsons"
	"github.com/tidwall/jsonc"
)

// Environment variables that override configuration files.
const (
	EnvHost        = "MIRROR_HOST"
	EnvMaxSessions = "MIRROR_MAX_SESSIONS"
	EnvTTL         = "MIRROR_TTL"
	EnvDataDir     = "MIRROR_DATA_DIR"
)

// Load reads the global and project configuration files, applies the
// environment on top and fills in defaults. envs has the form of
// [os.Environ]; a .env file in workingDir adds variables that are not set
// already.
func Load(workingDir, dataDir string, debug bool, envs []string) (*Config, error) {
	cfg, err := loadFromConfigPaths(ConfigPaths(workingDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from paths: %w", err)
	}
	cfg.workingDir = workingDir

	env, err := environ(workingDir, envs)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if dataDir != "" {
		cfg.Options.DataDirectory = dataDir
	}
	if debug {
		cfg.Options.Debug = true
	}
	cfg.setDefaults(workingDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadReader decodes a single JSONC document on top of the defaults.
func LoadReader(fd io.Reader) (*Config, error) {
	data, err := io.ReadAll(fd)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPaths lists the configuration files merged by [Load], lowest
// precedence first.
func ConfigPaths(cwd string) []string {
	configPaths := []string{GlobalConfig()}
	if cwd != "" {
		configPaths = append(configPaths,
			filepath.Join(cwd, appName+".json"),
			filepath.Join(cwd, "."+appName+".json"),
		)
	}
	return configPaths
}

func loadFromConfigPaths(configPaths []string) (*Config, error) {
	var configs []io.Reader

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
		}
		slog.Debug("Loading config file", "path", path)
		configs = append(configs, bytes.NewReader(jsonc.ToJSON(data)))
	}

	return loadFromReaders(configs)
}

func loadFromReaders(readers []io.Reader) (*Config, error) {
	if len(readers) == 0 {
		return Default(), nil
	}

	merged, err := jsons.Merge(readers)
	if err != nil {
		return nil, fmt.Errorf("failed to merge configuration readers: %w", err)
	}

	return LoadReader(bytes.NewReader(merged))
}

func environ(workingDir string, envs []string) (map[string]string, error) {
	env := make(map[string]string, len(envs))
	if workingDir != "" {
		dotenv, err := godotenv.Read(filepath.Join(workingDir, ".env"))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
		for k, v := range dotenv {
			env[k] = v
		}
	}
	for _, kv := range envs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	if v := env[EnvHost]; v != "" {
		c.Host = v
	}
	if v := env[EnvDataDir]; v != "" {
		c.Options.DataDirectory = v
	}
	if v := env[EnvMaxSessions]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxSessions, err)
		}
		c.Cache.MaxSessions = n
	}
	if v := env[EnvTTL]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTTL, err)
		}
		c.Cache.TTL = Duration(d)
	}
	return nil
}

func (c *Config) setDefaults(workingDir string) {
	if c.Options.DataDirectory == "" {
		c.Options.DataDirectory = defaultDataDirectory
	}
	if !filepath.IsAbs(c.Options.DataDirectory) && workingDir != "" {
		c.Options.DataDirectory = filepath.Join(workingDir, c.Options.DataDirectory)
	}
	if c.Options.LogFile == "" {
		c.Options.LogFile = filepath.Join(c.Options.DataDirectory, "logs", appName+".log")
	}
}

// GlobalConfig returns the path to the main configuration file for the user.
func GlobalConfig() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName, appName+".json")
	}

	// return the path to the main config directory
	// for windows, it should be in `%LOCALAPPDATA%/mirror/`
	// for linux and macOS, it should be in `$HOME/.config/mirror/`
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(localAppData, appName, appName+".json")
	}

	return filepath.Join(os.Getenv("HOME"), ".config", appName, appName+".json")
}
