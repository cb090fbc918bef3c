package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/mirror/internal/client"
	"github.com/charmbracelet/mirror/internal/config"
	"github.com/spf13/cobra"
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle   = dimStyle.Width(20)
	okStyle      = addStyle
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration and server information",
	Long:  `Display the configuration files in use, the data and log paths, the cache limits and the state of the agent server.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, c, err := setup(cmd)
		if err != nil {
			return err
		}

		sections := []string{
			sectionStyle.Render("Configuration"),
			renderConfigSection(cfg),
			"",
			sectionStyle.Render("Cache"),
			renderCacheSection(cfg),
			"",
			sectionStyle.Render("Server"),
			renderServerSection(cmd.Context(), c),
		}
		fmt.Fprintln(cmd.OutOrStdout(), lipgloss.JoinVertical(lipgloss.Left, sections...))
		return nil
	},
}

func detail(label, value string) string {
	return labelStyle.Render(label) + titleStyle.Render(value)
}

func renderConfigSection(cfg *config.Config) string {
	var details []string
	found := false
	for _, path := range config.ConfigPaths(cfg.WorkingDir()) {
		if _, err := os.Stat(path); err == nil {
			details = append(details, detail("Configuration File:", path))
			found = true
		}
	}
	if !found {
		details = append(details, detail("Configuration File:", "none (using defaults)"))
	}
	details = append(details,
		detail("Working Directory:", cfg.WorkingDir()),
		detail("Data Directory:", cfg.Options.DataDirectory),
		detail("Log File:", cfg.Options.LogFile),
	)
	return lipgloss.JoinVertical(lipgloss.Left, details...)
}

func renderCacheSection(cfg *config.Config) string {
	limit := func(v string, enabled bool) string {
		if !enabled {
			return "disabled"
		}
		return v
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		detail("Max Sessions:", limit(fmt.Sprint(cfg.Cache.MaxSessions), cfg.Cache.MaxSessions > 0)),
		detail("TTL:", limit(cfg.TTL().String(), cfg.TTL() > 0)),
		detail("Sweep Interval:", limit(cfg.SweepInterval().String(), cfg.SweepInterval() > 0)),
	)
}

func renderServerSection(ctx context.Context, c *client.Client) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	details := []string{detail("Address:", c.Addr())}
	if err := c.Health(ctx); err != nil {
		details = append(details, detail("Status:", errorStyle.Render("unreachable: "+err.Error())))
		return lipgloss.JoinVertical(lipgloss.Left, details...)
	}
	details = append(details, detail("Status:", okStyle.Render("healthy")))

	info, err := c.VersionInfo(ctx)
	if err != nil {
		details = append(details, detail("Version:", errorStyle.Render(err.Error())))
		return lipgloss.JoinVertical(lipgloss.Left, details...)
	}
	details = append(details,
		detail("Version:", info.Version),
		detail("Commit:", info.Commit),
		detail("Platform:", info.Platform),
	)
	return lipgloss.JoinVertical(lipgloss.Left, details...)
}
