package proto

import (
	"encoding/json"
)

// Error represents an error response.
type Error struct {
	Message string `json:"message"`
}

// MessageEvent carries a created, updated or deleted message of a session.
type MessageEvent struct {
	Directory string  `json:"directory"`
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`
}

// Key returns the key of the session the message belongs to.
func (e MessageEvent) Key() SessionKey {
	return SessionKey{Directory: e.Directory, ID: e.SessionID}
}

// MarshalJSON implements the [json.Marshaler] interface.
func (e MessageEvent) MarshalJSON() ([]byte, error) {
	msg, err := MarshalMessage(e.Message)
	if err != nil {
		return nil, err
	}
	type Alias MessageEvent
	return json.Marshal(&struct {
		Message json.RawMessage `json:"message"`
		*Alias
	}{
		Message: msg,
		Alias:   (*Alias)(&e),
	})
}

// UnmarshalJSON implements the [json.Unmarshaler] interface.
func (e *MessageEvent) UnmarshalJSON(data []byte) error {
	type Alias MessageEvent
	aux := &struct {
		Message json.RawMessage `json:"message"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	msg, err := UnmarshalMessage(aux.Message)
	if err != nil {
		return err
	}
	e.Message = msg
	return nil
}

// PartEvent carries a created, updated or deleted part of a message.
type PartEvent struct {
	Directory string `json:"directory"`
	SessionID string `json:"session_id"`
	Part      Part   `json:"part"`
}

// Key returns the key of the session the part belongs to.
func (e PartEvent) Key() SessionKey {
	return SessionKey{Directory: e.Directory, ID: e.SessionID}
}

// MarshalJSON implements the [json.Marshaler] interface.
func (e PartEvent) MarshalJSON() ([]byte, error) {
	part, err := MarshalPart(e.Part)
	if err != nil {
		return nil, err
	}
	type Alias PartEvent
	return json.Marshal(&struct {
		Part json.RawMessage `json:"part"`
		*Alias
	}{
		Part:  part,
		Alias: (*Alias)(&e),
	})
}

// UnmarshalJSON implements the [json.Unmarshaler] interface.
func (e *PartEvent) UnmarshalJSON(data []byte) error {
	type Alias PartEvent
	aux := &struct {
		Part json.RawMessage `json:"part"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	part, err := UnmarshalPart(aux.Part)
	if err != nil {
		return err
	}
	e.Part = part
	return nil
}

// DiffEvent carries the full set of file diffs of a session after it
// changed.
type DiffEvent struct {
	Directory string     `json:"directory"`
	SessionID string     `json:"session_id"`
	Diffs     []FileDiff `json:"diffs"`
}

// Key returns the key of the session the diffs belong to.
func (e DiffEvent) Key() SessionKey {
	return SessionKey{Directory: e.Directory, ID: e.SessionID}
}

// ServerConnected is the first event of every event stream. Receiving it
// again means the stream was re-established and events may have been lost.
type ServerConnected struct {
	Version string `json:"version,omitempty"`
}
