package proto

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type MessageRole string

const (
	User      MessageRole = "user"
	Assistant MessageRole = "assistant"
)

func (r MessageRole) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *MessageRole) UnmarshalText(data []byte) error {
	*r = MessageRole(data)
	return nil
}

// Message is either a [UserMessage] or an [AssistantMessage]. On the wire the
// variant is selected by the "role" field.
type Message interface {
	GetID() string
	GetSessionID() string
	Role() MessageRole
	isMessage()
}

type MessageTime struct {
	Created   int64  `json:"created"`
	Completed *int64 `json:"completed,omitempty"`
}

type UserMessage struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Time      MessageTime `json:"time"`
}

func (m UserMessage) GetID() string        { return m.ID }
func (m UserMessage) GetSessionID() string { return m.SessionID }
func (UserMessage) Role() MessageRole      { return User }
func (UserMessage) isMessage()             {}

type CacheTokens struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

type Tokens struct {
	Input     int         `json:"input"`
	Output    int         `json:"output"`
	Reasoning int         `json:"reasoning"`
	Cache     CacheTokens `json:"cache"`
}

// AssistantMessage is a reply to the user message referenced by ParentID.
// A user message and its replies form a turn.
type AssistantMessage struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionID"`
	ParentID   string      `json:"parentID"`
	Time       MessageTime `json:"time"`
	ModelID    string      `json:"modelID,omitempty"`
	ProviderID string      `json:"providerID,omitempty"`
	Cost       float64     `json:"cost,omitempty"`
	Tokens     *Tokens     `json:"tokens,omitempty"`
}

func (m AssistantMessage) GetID() string        { return m.ID }
func (m AssistantMessage) GetSessionID() string { return m.SessionID }
func (AssistantMessage) Role() MessageRole      { return Assistant }
func (AssistantMessage) isMessage()             {}

// IsCompleted reports whether the server marked the reply as finished.
func (m AssistantMessage) IsCompleted() bool {
	return m.Time.Completed != nil
}

// MarshalMessage encodes a message with its "role" discriminant.
func MarshalMessage(m Message) ([]byte, error) {
	switch m.(type) {
	case UserMessage, AssistantMessage:
	default:
		return nil, fmt.Errorf("unknown message type: %T", m)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "role", string(m.Role()))
}

// UnmarshalMessage decodes a message, selecting the variant from its "role"
// field.
func UnmarshalMessage(data []byte) (Message, error) {
	role := MessageRole(gjson.GetBytes(data, "role").String())
	switch role {
	case User:
		var m UserMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case Assistant:
		var m AssistantMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown message role: %q", role)
	}
}

// MessageWithParts is the shape returned by the bulk message listing: a
// message and every part it currently has.
type MessageWithParts struct {
	Info  Message `json:"info"`
	Parts []Part  `json:"parts"`
}

// MarshalJSON implements the [json.Marshaler] interface.
func (m MessageWithParts) MarshalJSON() ([]byte, error) {
	info, err := MarshalMessage(m.Info)
	if err != nil {
		return nil, err
	}
	parts, err := MarshalParts(m.Parts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&struct {
		Info  json.RawMessage `json:"info"`
		Parts json.RawMessage `json:"parts"`
	}{
		Info:  info,
		Parts: parts,
	})
}

// UnmarshalJSON implements the [json.Unmarshaler] interface.
func (m *MessageWithParts) UnmarshalJSON(data []byte) error {
	var aux struct {
		Info  json.RawMessage `json:"info"`
		Parts json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	info, err := UnmarshalMessage(aux.Info)
	if err != nil {
		return err
	}
	m.Info = info
	m.Parts = nil
	if len(aux.Parts) == 0 || string(aux.Parts) == "null" {
		return nil
	}
	parts, err := UnmarshalParts(aux.Parts)
	if err != nil {
		return err
	}
	m.Parts = parts
	return nil
}
