package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/mirror/internal/flatten"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/x/ansi"
)

const defaultWidth = 100

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	idStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	addStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	delStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hunkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	reasoningStyle = dimStyle.Italic(true)
)

// renderItems writes the render list of a session, one block per item.
func renderItems(w io.Writer, items []*flatten.Item, width int) {
	for _, item := range items {
		if item.IsFirstInTurn && item.Index > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, renderItem(item, width))
	}
}

func renderItem(item *flatten.Item, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	switch item.Kind {
	case flatten.KindUserMessage:
		return userStyle.Render("▌ You")
	case flatten.KindAssistantHeader:
		return assistantStyle.Render("▌ Assistant")
	}

	var lines []string
	for _, line := range strings.Split(partText(item.Part), "\n") {
		lines = append(lines, "  "+ansi.Truncate(line, width-2, "…"))
	}
	out := strings.Join(lines, "\n")
	if item.IsStreaming {
		out += dimStyle.Render(" …")
	}
	if item.IsSynthetic {
		out = dimStyle.Render(ansi.Strip(out))
	}
	return out
}

func partText(part proto.Part) string {
	switch p := part.(type) {
	case proto.TextPart:
		return p.Text
	case proto.ReasoningPart:
		if strings.TrimSpace(p.Text) == "" {
			return reasoningStyle.Render("Thinking")
		}
		return reasoningStyle.Render("Thinking: " + p.Text)
	case proto.ToolPart:
		head := toolStyle.Render("⚙ "+p.Tool) + " " + dimStyle.Render(string(p.State.Status))
		if p.State.Title != "" {
			head += " " + p.State.Title
		}
		if p.State.Status == proto.ToolStatusError && p.State.Error != "" {
			head += "\n" + errorStyle.Render(p.State.Error)
		}
		return head
	case proto.PatchPart:
		return dimStyle.Render(fmt.Sprintf("± %d file(s) changed", len(p.Files)))
	case proto.FilePart:
		name := p.Filename
		if name == "" {
			name = p.URL
		}
		return dimStyle.Render(fmt.Sprintf("📎 %s (%s)", name, p.Mime))
	case proto.AgentPart:
		return toolStyle.Render("@" + p.Name)
	case proto.CompactionPart:
		return dimStyle.Render("Conversation compacted")
	case nil:
		return ""
	default:
		return dimStyle.Render("[" + string(part.PartType()) + "]")
	}
}

// exportedItem is the shape of an item in json and yaml output.
type exportedItem struct {
	ID            string         `json:"id" yaml:"id"`
	Kind          flatten.Kind   `json:"kind" yaml:"kind"`
	TurnID        string         `json:"turn_id" yaml:"turn_id"`
	MessageID     string         `json:"message_id" yaml:"message_id"`
	Index         int            `json:"index" yaml:"index"`
	IsFirstInTurn bool           `json:"is_first_in_turn,omitempty" yaml:"is_first_in_turn,omitempty"`
	IsLastInTurn  bool           `json:"is_last_in_turn,omitempty" yaml:"is_last_in_turn,omitempty"`
	IsAssistant   bool           `json:"is_assistant,omitempty" yaml:"is_assistant,omitempty"`
	IsStreaming   bool           `json:"is_streaming,omitempty" yaml:"is_streaming,omitempty"`
	IsSynthetic   bool           `json:"is_synthetic,omitempty" yaml:"is_synthetic,omitempty"`
	Part          map[string]any `json:"part,omitempty" yaml:"part,omitempty"`
}

func exportItems(items []*flatten.Item) ([]exportedItem, error) {
	out := make([]exportedItem, 0, len(items))
	for _, item := range items {
		e := exportedItem{
			ID:            item.ID,
			Kind:          item.Kind,
			TurnID:        item.TurnID,
			MessageID:     item.MessageID,
			Index:         item.Index,
			IsFirstInTurn: item.IsFirstInTurn,
			IsLastInTurn:  item.IsLastInTurn,
			IsAssistant:   item.IsAssistant,
			IsStreaming:   item.IsStreaming,
			IsSynthetic:   item.IsSynthetic,
		}
		if item.Part != nil {
			part, err := partMap(item.Part)
			if err != nil {
				return nil, err
			}
			e.Part = part
		}
		out = append(out, e)
	}
	return out, nil
}

func partMap(part proto.Part) (map[string]any, error) {
	b, err := proto.MarshalPart(part)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func renderSummary(s *proto.DiffSummary) string {
	if s == nil || s.IsZero() {
		return dimStyle.Render("no changes")
	}
	return fmt.Sprintf("%s %s %s",
		addStyle.Render(fmt.Sprintf("+%d", s.Additions)),
		delStyle.Render(fmt.Sprintf("-%d", s.Deletions)),
		dimStyle.Render(fmt.Sprintf("(%d files)", s.Files)),
	)
}

func renderUnified(w io.Writer, unified string) {
	for _, line := range strings.Split(strings.TrimSuffix(unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(w, titleStyle.Bold(true).Render(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintln(w, hunkStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprintln(w, addStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintln(w, delStyle.Render(line))
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func relativeTime(ms int64, now time.Time) string {
	if ms == 0 {
		return "-"
	}
	d := now.Sub(time.UnixMilli(ms))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
