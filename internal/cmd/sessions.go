package cmd

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/x/ansi"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

func init() {
	sessionsCmd.Flags().BoolP("all", "a", false, "List sessions of every project")
	sessionsCmd.Flags().StringP("filter", "f", "", "Fuzzy filter on title and ID")
	sessionsCmd.Flags().Bool("json", false, "Print JSON")
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		filter, _ := cmd.Flags().GetString("filter")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, c, err := setup(cmd)
		if err != nil {
			return err
		}

		dir := cfg.WorkingDir()
		if all {
			dir = ""
		}
		sessions, err := c.ListSessions(cmd.Context(), dir)
		if err != nil {
			return err
		}
		sessions = filterSessions(sessions, filter)

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}

		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No sessions found."))
			return nil
		}
		now := time.Now()
		for _, s := range sessions {
			fmt.Fprintln(cmd.OutOrStdout(), sessionLine(s, all, now))
		}
		return nil
	},
}

type sessionSource []proto.Session

func (s sessionSource) String(i int) string { return s[i].Title + " " + s[i].ID }
func (s sessionSource) Len() int            { return len(s) }

// filterSessions orders sessions by fuzzy match score, or by most recent
// update without a pattern.
func filterSessions(sessions []proto.Session, pattern string) []proto.Session {
	if strings.TrimSpace(pattern) == "" {
		sorted := slices.Clone(sessions)
		slices.SortStableFunc(sorted, func(a, b proto.Session) int {
			return cmp.Compare(b.Time.Updated, a.Time.Updated)
		})
		return sorted
	}

	matches := fuzzy.FindFrom(pattern, sessionSource(sessions))
	out := make([]proto.Session, 0, len(matches))
	for _, match := range matches {
		out = append(out, sessions[match.Index])
	}
	return out
}

func sessionLine(s proto.Session, withDir bool, now time.Time) string {
	title := s.Title
	if title == "" {
		title = "Untitled"
	}
	if s.IsSubagent() {
		title = strings.Repeat("  ", max(s.Depth, 1)) + "↳ " + title
	}

	key := s.ID
	if withDir {
		key = s.Key().String()
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		idStyle.Render(key),
		titleStyle.Render(ansi.Truncate(title, 60, "…")),
		renderSummary(s.Summary),
		dimStyle.Render(relativeTime(s.Time.Updated, now)),
	)
}
