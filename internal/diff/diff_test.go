package diff

import (
	"strings"
	"testing"

	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/stretchr/testify/require"
)

func TestGenerateDiff(t *testing.T) {
	t.Parallel()

	before := "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n"
	after := "package main\n\nfunc main() {\n\tprintln(\"hello\")\n\tprintln(\"world\")\n}\n"

	unified, additions, removals := GenerateDiff(before, after, "/cmd/main.go")
	require.Equal(t, 2, additions)
	require.Equal(t, 1, removals)
	require.True(t, strings.HasPrefix(unified, "--- a/cmd/main.go\n+++ b/cmd/main.go\n"), unified)
}

func TestGenerateDiffUnchanged(t *testing.T) {
	t.Parallel()

	unified, additions, removals := GenerateDiff("same\n", "same\n", "x.txt")
	require.Empty(t, unified)
	require.Zero(t, additions)
	require.Zero(t, removals)
}

func TestFillAndSummarize(t *testing.T) {
	t.Parallel()

	in := []proto.FileDiff{
		{File: "new.go", Before: "", After: "a\nb\nc\n"},
		{File: "kept.go", Before: "x\n", After: "y\n", Additions: 5, Deletions: 5},
		{File: "same.go", Before: "z\n", After: "z\n"},
	}
	got := Fill(in)

	require.Equal(t, 3, got[0].Additions)
	require.Zero(t, got[0].Deletions)
	require.Equal(t, 5, got[1].Additions, "server counts are trusted")
	require.Zero(t, got[2].Additions)
	require.Zero(t, in[0].Additions, "input is not modified")

	require.Equal(t, proto.DiffSummary{Additions: 8, Deletions: 5, Files: 3}, Summarize(got))
	require.True(t, Summarize(nil).IsZero())
	require.Nil(t, Fill(nil))
}

func TestFilter(t *testing.T) {
	t.Parallel()

	diffs := []proto.FileDiff{
		{File: "internal/store/store.go"},
		{File: "internal/store/store_test.go"},
		{File: "README.md"},
	}

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{name: "none", want: []string{"internal/store/store.go", "internal/store/store_test.go", "README.md"}},
		{name: "go files", patterns: []string{"**/*.go"}, want: []string{"internal/store/store.go", "internal/store/store_test.go"}},
		{name: "tests or docs", patterns: []string{"**/*_test.go", "*.md"}, want: []string{"internal/store/store_test.go", "README.md"}},
		{name: "no match", patterns: []string{"cmd/**"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Filter(diffs, tt.patterns...)
			require.NoError(t, err)
			var files []string
			for _, d := range got {
				files = append(files, d.File)
			}
			require.Equal(t, tt.want, files)
		})
	}

	_, err := Filter(diffs, "[")
	require.Error(t, err)
}
