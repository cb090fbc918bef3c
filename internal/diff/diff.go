// Package diff computes and summarizes file diffs of a session.
package diff

import (
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/mirror/internal/proto"
)

// GenerateDiff creates a unified diff from two file contents, along with the
// number of added and removed lines.
func GenerateDiff(beforeContent, afterContent, fileName string) (string, int, int) {
	fileName = strings.TrimPrefix(fileName, "/")

	var (
		unified   = udiff.Unified("a/"+fileName, "b/"+fileName, beforeContent, afterContent)
		additions = 0
		removals  = 0
	)

	for line := range strings.SplitSeq(unified, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			additions++
		} else if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			removals++
		}
	}

	return unified, additions, removals
}

// Unified renders the unified diff of a single file.
func Unified(d proto.FileDiff) string {
	unified, _, _ := GenerateDiff(d.Before, d.After, d.File)
	return unified
}

// Fill returns a copy of diffs where entries the server sent without line
// counts have them computed from their contents.
func Fill(diffs []proto.FileDiff) []proto.FileDiff {
	if diffs == nil {
		return nil
	}
	out := make([]proto.FileDiff, len(diffs))
	for i, d := range diffs {
		if d.Additions == 0 && d.Deletions == 0 && d.Before != d.After {
			_, d.Additions, d.Deletions = GenerateDiff(d.Before, d.After, d.File)
		}
		out[i] = d
	}
	return out
}

// Summarize totals the line counts of diffs.
func Summarize(diffs []proto.FileDiff) proto.DiffSummary {
	var s proto.DiffSummary
	for _, d := range diffs {
		s.Additions += d.Additions
		s.Deletions += d.Deletions
		s.Files++
	}
	return s
}

// Filter keeps the diffs whose file matches at least one of the doublestar
// patterns. No patterns keeps everything.
func Filter(diffs []proto.FileDiff, patterns ...string) ([]proto.FileDiff, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern: %q", pattern)
		}
	}
	if len(patterns) == 0 {
		return diffs, nil
	}

	var out []proto.FileDiff
	for _, d := range diffs {
		name := strings.TrimPrefix(d.File, "/")
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, name); ok {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}
