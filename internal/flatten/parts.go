package flatten

import (
	"strings"

	"github.com/charmbracelet/mirror/internal/proto"
)

// IsPartVisible reports whether a part is rendered at all. Step markers and
// snapshots are bookkeeping; ignored and blank text parts say nothing.
func IsPartVisible(part proto.Part) bool {
	switch p := part.(type) {
	case nil:
		return false
	case proto.StepStartPart, proto.StepFinishPart, proto.SnapshotPart:
		return false
	case proto.TextPart:
		return !p.Ignored && strings.TrimSpace(p.Text) != ""
	case proto.ReasoningPart, proto.ToolPart, proto.PatchPart, proto.FilePart,
		proto.AgentPart, proto.CompactionPart:
		return true
	case proto.UnknownPart:
		switch p.Kind {
		case proto.PartTypeStepStart, proto.PartTypeStepFinish, proto.PartTypeSnapshot:
			return false
		}
		return true
	default:
		return true
	}
}

// IsPartStreaming reports whether a part is still being written by the
// server. Tool parts stream until they leave the pending and running states;
// text and reasoning stream while they have a start time but no end time.
// Anything else is settled.
func IsPartStreaming(part proto.Part) bool {
	switch p := part.(type) {
	case proto.ToolPart:
		return p.State.Status == proto.ToolStatusPending || p.State.Status == proto.ToolStatusRunning
	case proto.TextPart:
		return p.Time != nil && p.Time.End == nil
	case proto.ReasoningPart:
		return p.Time != nil && p.Time.End == nil
	case proto.PatchPart, proto.FilePart, proto.AgentPart, proto.StepStartPart,
		proto.StepFinishPart, proto.SnapshotPart, proto.CompactionPart, proto.UnknownPart:
		return false
	default:
		return false
	}
}

// IsPartSynthetic reports whether a part was injected by the server rather
// than written by the user or the model.
func IsPartSynthetic(part proto.Part) bool {
	p, ok := part.(proto.TextPart)
	return ok && p.Synthetic
}
