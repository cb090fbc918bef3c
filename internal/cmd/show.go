package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/mirror/internal/mirror"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	showCmd.Flags().StringP("format", "o", "text", "Output format: text, json or yaml")
	showCmd.Flags().IntP("width", "w", defaultWidth, "Truncate lines to this width")
}

var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print the conversation of a session",
	Long: `Print a session as a flat list of items: a header per message followed by
its visible parts. Sessions are given as ID@directory, or as a bare ID of the
current project.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		width, _ := cmd.Flags().GetInt("width")

		cfg, c, err := setup(cmd)
		if err != nil {
			return err
		}
		key, err := resolveKey(args[0], cfg.WorkingDir())
		if err != nil {
			return err
		}

		m := mirror.New(c, mirror.OptionsFromConfig(cfg))
		defer m.Shutdown()

		v := m.OpenView(key)
		defer v.Close()
		if err := v.Hydrate(cmd.Context(), false); err != nil {
			return err
		}
		items := v.Items()

		out := cmd.OutOrStdout()
		switch format {
		case "text":
			renderItems(out, items, width)
			return nil
		case "json":
			exported, err := exportItems(items)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(exported)
		case "yaml":
			exported, err := exportItems(items)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(exported)
		default:
			return fmt.Errorf("unknown format: %q", format)
		}
	},
}
