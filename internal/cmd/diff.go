package cmd

import (
	"fmt"

	"github.com/charmbracelet/mirror/internal/diff"
	"github.com/charmbracelet/mirror/internal/mirror"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/spf13/cobra"
)

func init() {
	diffCmd.Flags().StringSliceP("include", "i", nil, "Only show files matching these glob patterns")
	diffCmd.Flags().Bool("stat", false, "Only show changed line counts")
}

var diffCmd = &cobra.Command{
	Use:   "diff <session>",
	Short: "Show the file changes of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includes, _ := cmd.Flags().GetStringSlice("include")
		stat, _ := cmd.Flags().GetBool("stat")

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
		if err := m.HydrateDiffs(cmd.Context(), key, false); err != nil {
			return err
		}

		diffs, err := diff.Filter(m.GetDiffs(key), includes...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(diffs) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No changes."))
			return nil
		}
		if stat {
			for _, d := range diffs {
				fmt.Fprintf(out, "%s %s\n", titleStyle.Render(d.File), renderSummary(&proto.DiffSummary{
					Additions: d.Additions,
					Deletions: d.Deletions,
					Files:     1,
				}))
			}
			summary := diff.Summarize(diffs)
			fmt.Fprintln(out, renderSummary(&summary))
			return nil
		}
		for _, d := range diffs {
			renderUnified(out, diff.Unified(d))
		}
		return nil
	},
}
