package proto

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeTool       PartType = "tool"
	PartTypePatch      PartType = "patch"
	PartTypeFile       PartType = "file"
	PartTypeAgent      PartType = "agent"
	PartTypeStepStart  PartType = "step-start"
	PartTypeStepFinish PartType = "step-finish"
	PartTypeSnapshot   PartType = "snapshot"
	PartTypeCompaction PartType = "compaction"
)

func (t PartType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

func (t *PartType) UnmarshalText(data []byte) error {
	*t = PartType(data)
	return nil
}

// Part is one piece of a message. The concrete type is selected on the wire
// by the "type" field; types this client does not know decode to
// [UnknownPart].
type Part interface {
	GetID() string
	GetSessionID() string
	GetMessageID() string
	PartType() PartType
	isPart()
}

// PartBase holds the fields every part carries.
type PartBase struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

func (p PartBase) GetID() string        { return p.ID }
func (p PartBase) GetSessionID() string { return p.SessionID }
func (p PartBase) GetMessageID() string { return p.MessageID }
func (PartBase) isPart()                {}

// PartTime is the lifetime of a streamed part. A nil End means the part is
// still being written.
type PartTime struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

type TextPart struct {
	PartBase
	Text      string    `json:"text"`
	Synthetic bool      `json:"synthetic,omitempty"`
	Ignored   bool      `json:"ignored,omitempty"`
	Time      *PartTime `json:"time,omitempty"`
}

func (TextPart) PartType() PartType { return PartTypeText }

type ReasoningPart struct {
	PartBase
	Text string    `json:"text"`
	Time *PartTime `json:"time,omitempty"`
}

func (ReasoningPart) PartType() PartType { return PartTypeReasoning }

type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

type ToolState struct {
	Status   ToolStatus     `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     *PartTime      `json:"time,omitempty"`
}

type ToolPart struct {
	PartBase
	Tool   string    `json:"tool"`
	CallID string    `json:"callID"`
	State  ToolState `json:"state"`
}

func (ToolPart) PartType() PartType { return PartTypeTool }

type PatchPart struct {
	PartBase
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

func (PatchPart) PartType() PartType { return PartTypePatch }

type FilePart struct {
	PartBase
	Mime     string `json:"mime"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url"`
}

func (FilePart) PartType() PartType { return PartTypeFile }

type AgentPart struct {
	PartBase
	Name string `json:"name"`
}

func (AgentPart) PartType() PartType { return PartTypeAgent }

type StepStartPart struct {
	PartBase
	Snapshot string `json:"snapshot,omitempty"`
}

func (StepStartPart) PartType() PartType { return PartTypeStepStart }

type StepFinishPart struct {
	PartBase
	Reason   string  `json:"reason,omitempty"`
	Snapshot string  `json:"snapshot,omitempty"`
	Cost     float64 `json:"cost"`
	Tokens   *Tokens `json:"tokens,omitempty"`
}

func (StepFinishPart) PartType() PartType { return PartTypeStepFinish }

type SnapshotPart struct {
	PartBase
	Snapshot string `json:"snapshot"`
}

func (SnapshotPart) PartType() PartType { return PartTypeSnapshot }

type CompactionPart struct {
	PartBase
	Auto bool `json:"auto"`
}

func (CompactionPart) PartType() PartType { return PartTypeCompaction }

// UnknownPart keeps a part this client cannot interpret, either because its
// type is new or because its body did not match the expected shape.
type UnknownPart struct {
	PartBase
	Kind PartType        `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (p UnknownPart) PartType() PartType { return p.Kind }

// MarshalPart encodes a part with its "type" discriminant.
func MarshalPart(p Part) ([]byte, error) {
	switch p := p.(type) {
	case UnknownPart:
		if len(p.Raw) > 0 {
			return p.Raw, nil
		}
		return json.Marshal(p)
	case TextPart, ReasoningPart, ToolPart, PatchPart, FilePart, AgentPart,
		StepStartPart, StepFinishPart, SnapshotPart, CompactionPart:
	default:
		return nil, fmt.Errorf("unknown part type: %T", p)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", string(p.PartType()))
}

// UnmarshalPart decodes a single part. A body that does not fit its declared
// type is kept as an [UnknownPart] instead of failing the whole message.
func UnmarshalPart(data []byte) (Part, error) {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return nil, fmt.Errorf("part has no type")
	}

	var (
		part Part
		err  error
	)
	switch PartType(typ.String()) {
	case PartTypeText:
		part, err = decodePart[TextPart](data)
	case PartTypeReasoning:
		part, err = decodePart[ReasoningPart](data)
	case PartTypeTool:
		part, err = decodePart[ToolPart](data)
	case PartTypePatch:
		part, err = decodePart[PatchPart](data)
	case PartTypeFile:
		part, err = decodePart[FilePart](data)
	case PartTypeAgent:
		part, err = decodePart[AgentPart](data)
	case PartTypeStepStart:
		part, err = decodePart[StepStartPart](data)
	case PartTypeStepFinish:
		part, err = decodePart[StepFinishPart](data)
	case PartTypeSnapshot:
		part, err = decodePart[SnapshotPart](data)
	case PartTypeCompaction:
		part, err = decodePart[CompactionPart](data)
	default:
		return unknownPart(data, PartType(typ.String())), nil
	}
	if err != nil {
		slog.Debug("keeping malformed part as unknown", "type", typ.String(), "error", err)
		return unknownPart(data, PartType(typ.String())), nil
	}
	return part, nil
}

func decodePart[T Part](data []byte) (Part, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func unknownPart(data []byte, typ PartType) UnknownPart {
	p := UnknownPart{
		PartBase: PartBase{
			ID:        gjson.GetBytes(data, "id").String(),
			SessionID: gjson.GetBytes(data, "sessionID").String(),
			MessageID: gjson.GetBytes(data, "messageID").String(),
		},
		Kind: typ,
	}
	p.Raw = append(json.RawMessage(nil), data...)
	return p
}

func MarshalParts(parts []Part) ([]byte, error) {
	raw := make([]json.RawMessage, len(parts))
	for i, part := range parts {
		b, err := MarshalPart(part)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return json.Marshal(raw)
}

func UnmarshalParts(data []byte) ([]Part, error) {
	var temp []json.RawMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return nil, err
	}

	parts := make([]Part, 0, len(temp))
	for _, raw := range temp {
		part, err := UnmarshalPart(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}
