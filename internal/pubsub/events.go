package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/mirror/internal/proto"
)

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

type Suscriber[T any] interface {
	Subscribe(context.Context) <-chan Event[T]
}

type (
	PayloadType = string

	Payload struct {
		Type    PayloadType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}

	// EventType identifies the type of event
	EventType string

	// Event represents an event in the lifecycle of a resource
	Event[T any] struct {
		Type    EventType `json:"type"`
		Payload T         `json:"payload"`
	}

	Publisher[T any] interface {
		Publish(EventType, T)
	}
)

const (
	PayloadTypeSession   PayloadType = "session"
	PayloadTypeMessage   PayloadType = "message"
	PayloadTypePart      PayloadType = "part"
	PayloadTypeDiff      PayloadType = "diff"
	PayloadTypeConnected PayloadType = "server_connected"
)

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

func (t *EventType) UnmarshalText(data []byte) error {
	*t = EventType(data)
	return nil
}

// PayloadTypeOf returns the wire name of a payload, or false if the payload
// is not one that travels over the event stream.
func PayloadTypeOf(payload any) (PayloadType, bool) {
	switch payload.(type) {
	case proto.Session:
		return PayloadTypeSession, true
	case proto.MessageEvent:
		return PayloadTypeMessage, true
	case proto.PartEvent:
		return PayloadTypePart, true
	case proto.DiffEvent:
		return PayloadTypeDiff, true
	case proto.ServerConnected:
		return PayloadTypeConnected, true
	default:
		return "", false
	}
}

func (e Event[T]) MarshalJSON() ([]byte, error) {
	type Alias Event[T]

	typ, ok := PayloadTypeOf(e.Payload)
	if !ok {
		return nil, fmt.Errorf("unknown payload type: %T", e.Payload)
	}
	bts, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	p, err := json.Marshal(&Payload{
		Type:    typ,
		Payload: bts,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(&struct {
		Payload json.RawMessage `json:"payload"`
		*Alias
	}{
		Payload: json.RawMessage(p),
		Alias:   (*Alias)(&e),
	})
}

func (e *Event[T]) UnmarshalJSON(data []byte) error {
	type Alias Event[T]
	aux := &struct {
		Payload json.RawMessage `json:"payload"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var wp Payload
	if err := json.Unmarshal(aux.Payload, &wp); err != nil {
		return err
	}

	pl, err := decodePayload(wp)
	if err != nil {
		return err
	}

	v, ok := pl.(T)
	if !ok {
		return fmt.Errorf("payload %q does not fit %T", wp.Type, e.Payload)
	}
	e.Payload = v
	return nil
}

// Decode parses a wire event into a typed [Event], returned as any so callers
// can switch on the concrete event type.
func Decode(data []byte) (any, error) {
	var raw struct {
		Type    EventType `json:"type"`
		Payload Payload   `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	pl, err := decodePayload(raw.Payload)
	if err != nil {
		return nil, err
	}

	switch p := pl.(type) {
	case proto.Session:
		return Event[proto.Session]{Type: raw.Type, Payload: p}, nil
	case proto.MessageEvent:
		return Event[proto.MessageEvent]{Type: raw.Type, Payload: p}, nil
	case proto.PartEvent:
		return Event[proto.PartEvent]{Type: raw.Type, Payload: p}, nil
	case proto.DiffEvent:
		return Event[proto.DiffEvent]{Type: raw.Type, Payload: p}, nil
	case proto.ServerConnected:
		return Event[proto.ServerConnected]{Type: raw.Type, Payload: p}, nil
	default:
		return nil, fmt.Errorf("unknown payload type: %q", raw.Payload.Type)
	}
}

func decodePayload(wp Payload) (any, error) {
	switch wp.Type {
	case PayloadTypeSession:
		return unmarshalAs[proto.Session](wp.Payload)
	case PayloadTypeMessage:
		return unmarshalAs[proto.MessageEvent](wp.Payload)
	case PayloadTypePart:
		return unmarshalAs[proto.PartEvent](wp.Payload)
	case PayloadTypeDiff:
		return unmarshalAs[proto.DiffEvent](wp.Payload)
	case PayloadTypeConnected:
		return unmarshalAs[proto.ServerConnected](wp.Payload)
	default:
		return nil, fmt.Errorf("unknown payload type: %q", wp.Type)
	}
}

func unmarshalAs[T any](data []byte) (any, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
