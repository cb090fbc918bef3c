package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/charmbracelet/mirror/internal/flatten"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"
)

func TestResolveKey(t *testing.T) {
	t.Parallel()

	key, err := resolveKey("s1", "/work")
	require.NoError(t, err)
	require.Equal(t, proto.SessionKey{ID: "s1", Directory: "/work"}, key)

	key, err = resolveKey("s1@/other", "/work")
	require.NoError(t, err)
	require.Equal(t, proto.SessionKey{ID: "s1", Directory: "/other"}, key)

	_, err = resolveKey("", "/work")
	require.Error(t, err)
}

func TestFilterSessions(t *testing.T) {
	t.Parallel()

	sessions := []proto.Session{
		{ID: "s1", Title: "Refactor the store", Time: proto.SessionTime{Updated: 10}},
		{ID: "s2", Title: "Fix flaky test", Time: proto.SessionTime{Updated: 30}},
		{ID: "s3", Title: "Write docs", Time: proto.SessionTime{Updated: 20}},
	}

	t.Run("no pattern sorts by update", func(t *testing.T) {
		t.Parallel()
		got := filterSessions(sessions, " ")
		require.Equal(t, []string{"s2", "s3", "s1"}, sessionIDs(got))
		require.Equal(t, "s1", sessions[0].ID)
	})

	t.Run("fuzzy", func(t *testing.T) {
		t.Parallel()
		got := filterSessions(sessions, "refstore")
		require.Equal(t, []string{"s1"}, sessionIDs(got))
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()
		require.Empty(t, filterSessions(sessions, "zzz"))
	})
}

func sessionIDs(sessions []proto.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestRelativeTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: 10 * time.Second, want: "just now"},
		{ago: 5 * time.Minute, want: "5m ago"},
		{ago: 3 * time.Hour, want: "3h ago"},
		{ago: 50 * time.Hour, want: "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, relativeTime(now.Add(-tt.ago).UnixMilli(), now))
		})
	}
	require.Equal(t, "-", relativeTime(0, now))
}

func TestPartText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", partText(proto.TextPart{Text: "hello"}))
	require.Empty(t, partText(nil))

	tool := ansi.Strip(partText(proto.ToolPart{
		Tool:  "bash",
		State: proto.ToolState{Status: proto.ToolStatusError, Error: "exit 1"},
	}))
	require.Contains(t, tool, "bash")
	require.Contains(t, tool, "exit 1")

	unknown := ansi.Strip(partText(proto.UnknownPart{Kind: "hologram"}))
	require.Equal(t, "[hologram]", unknown)
}

func TestRenderItems(t *testing.T) {
	t.Parallel()

	items := []*flatten.Item{
		{ID: "user-message-a", Kind: flatten.KindUserMessage, Index: 0, IsFirstInTurn: true},
		{ID: "part-a-p1", Kind: flatten.KindPart, Index: 1, Part: proto.TextPart{Text: "a very long line of text"}},
	}
	var buf bytes.Buffer
	renderItems(&buf, items, 12)

	out := ansi.Strip(buf.String())
	require.Contains(t, out, "You")
	require.Contains(t, out, "a very l")
	require.Contains(t, out, "…")
	require.NotContains(t, out, "long line")
}

func TestExportItems(t *testing.T) {
	t.Parallel()

	items := []*flatten.Item{
		{ID: "user-message-a", Kind: flatten.KindUserMessage, TurnID: "a", MessageID: "a", IsFirstInTurn: true},
		{
			ID: "part-a-p1", Kind: flatten.KindPart, TurnID: "a", MessageID: "a", Index: 1,
			Part: proto.TextPart{PartBase: proto.PartBase{ID: "p1", MessageID: "a"}, Text: "hi"},
		},
	}
	got, err := exportItems(items)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Nil(t, got[0].Part)
	require.Equal(t, "text", got[1].Part["type"])
	require.Equal(t, "hi", got[1].Part["text"])
}
