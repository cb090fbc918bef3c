package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/mirror/internal/log"
)

// Init loads the configuration, prepares the data directory and starts
// logging to the configured log file.
func Init(workingDir, dataDir string, debug bool, envs []string) (*Config, error) {
	cfg, err := Load(workingDir, dataDir, debug, envs)
	if err != nil {
		return nil, err
	}
	if err := createDataDir(cfg.Options.DataDirectory); err != nil {
		return nil, err
	}
	log.Setup(cfg.Options.LogFile, cfg.Options.Debug)
	return cfg, nil
}

func createDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %q %w", dir, err)
	}

	gitIgnorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitIgnorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitIgnorePath, []byte("*\n"), 0o644); err != nil {
			return fmt.Errorf("failed to create .gitignore file: %q %w", gitIgnorePath, err)
		}
	}

	return nil
}
