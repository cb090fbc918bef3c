package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/mirror/internal/client"
	"github.com/charmbracelet/mirror/internal/config"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "Custom mirror data directory")
	rootCmd.PersistentFlags().StringP("host", "H", "", "Agent server host (defaults to the local server socket)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.AddCommand(
		sessionsCmd,
		showCmd,
		diffCmd,
		watchCmd,
		infoCmd,
		schemaCmd,
		logsCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Follow agent sessions from the terminal",
	Long: heredoc.Doc(`
		Mirror keeps a local copy of the sessions of an agent server and shows
		them as they change. Sessions are fetched once, kept up to date from
		the server's event stream and dropped again when idle.
	`),
	Example: heredoc.Doc(`
		# List the sessions of the current project
		mirror sessions

		# Find a session by title
		mirror sessions --all --filter "refactor store"

		# Print a session as it looks right now
		mirror show ses_01HZ@/path/to/project

		# Show the files a session changed
		mirror diff ses_01HZ --include "**/*.go"

		# Follow sessions live
		mirror watch ses_01HZ ses_02AB

		# Talk to a server on another address
		mirror -H tcp://127.0.0.1:8080 sessions
	`),
	SilenceUsage: true,
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and connects a client to the agent server.
func setup(cmd *cobra.Command) (*config.Config, *client.Client, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Init(cwd, dataDir, debug, os.Environ())
	if err != nil {
		return nil, nil, err
	}

	host, _ := cmd.Flags().GetString("host")
	if host == "" {
		host = cfg.Host
	}
	if host == "" {
		host = client.DefaultHost()
	}
	c, err := client.New(host)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid server host: %v", err)
	}
	return cfg, c, nil
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}

// resolveKey parses a session argument. A bare session ID belongs to the
// working directory.
func resolveKey(arg, cwd string) (proto.SessionKey, error) {
	key, err := proto.ParseSessionKey(arg)
	if err != nil {
		return proto.SessionKey{}, err
	}
	if key.Directory == "" {
		key.Directory = cwd
	}
	return key, nil
}
