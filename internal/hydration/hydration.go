// Package hydration decides whether cached session data can be trusted or has
// to be fetched from the server again.
package hydration

import "github.com/charmbracelet/mirror/internal/proto"

// ShouldFetchSessionMessages reports whether the messages of a session have
// to be fetched. Cached messages are trusted unless the caller forces a
// refetch or flagged the session as needing hydration, e.g. after the event
// stream reconnected.
func ShouldFetchSessionMessages(existing []proto.Message, needsHydration, force bool) bool {
	if force || needsHydration {
		return true
	}
	return len(existing) == 0
}

// ShouldFetchSessionDiffs reports whether the file diffs of a session have to
// be fetched, given the cheap change summary the server keeps on the session.
//
// A missing summary always fetches. A summary without changes never does.
// Otherwise diffs are fetched only when none are cached.
func ShouldFetchSessionDiffs(existing []proto.FileDiff, summary *proto.DiffSummary, force bool) bool {
	if force || summary == nil {
		return true
	}
	if summary.IsZero() {
		return false
	}
	return len(existing) == 0
}

// ShouldFetchSessionDiffsSince is [ShouldFetchSessionDiffs] for callers that
// remember the summary the cached diffs were fetched under. Cached diffs are
// refetched when the summary moved since then.
func ShouldFetchSessionDiffsSince(existing []proto.FileDiff, cached, summary *proto.DiffSummary, force bool) bool {
	if ShouldFetchSessionDiffs(existing, summary, force) {
		return true
	}
	if summary.IsZero() || cached == nil {
		return false
	}
	return *cached != *summary
}
