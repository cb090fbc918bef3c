package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("part", func(t *testing.T) {
		t.Parallel()
		in := Event[proto.PartEvent]{
			Type: UpdatedEvent,
			Payload: proto.PartEvent{
				Directory: "/work",
				SessionID: "s1",
				Part: proto.TextPart{
					PartBase: proto.PartBase{ID: "p1", SessionID: "s1", MessageID: "m1"},
					Text:     "streaming…",
				},
			},
		}
		data, err := json.Marshal(in)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, in, got)
	})

	t.Run("session", func(t *testing.T) {
		t.Parallel()
		in := Event[proto.Session]{
			Type:    CreatedEvent,
			Payload: proto.Session{ID: "s1", Directory: "/work", Title: "hello", Summary: &proto.DiffSummary{Files: 2}},
		}
		data, err := json.Marshal(in)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, in, got)
	})

	t.Run("wire shape", func(t *testing.T) {
		t.Parallel()
		got, err := Decode([]byte(`{"type":"created","payload":{"type":"server_connected","payload":{"version":"v1.2.3"}}}`))
		require.NoError(t, err)
		require.Equal(t, Event[proto.ServerConnected]{
			Type:    CreatedEvent,
			Payload: proto.ServerConnected{Version: "v1.2.3"},
		}, got)
	})

	t.Run("unknown payload", func(t *testing.T) {
		t.Parallel()
		_, err := Decode([]byte(`{"type":"created","payload":{"type":"lsp","payload":{}}}`))
		require.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, err := Decode([]byte(`{"type":`))
		require.Error(t, err)
	})
}

func TestEventUnmarshalMismatch(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Event[proto.DiffEvent]{
		Type:    UpdatedEvent,
		Payload: proto.DiffEvent{Directory: "/work", SessionID: "s1"},
	})
	require.NoError(t, err)

	var ok Event[proto.DiffEvent]
	require.NoError(t, json.Unmarshal(data, &ok))
	require.Equal(t, "s1", ok.Payload.SessionID)

	var wrong Event[proto.Session]
	require.Error(t, json.Unmarshal(data, &wrong))
}

func TestEventMarshalUnknownPayload(t *testing.T) {
	t.Parallel()

	_, err := json.Marshal(Event[string]{Type: CreatedEvent, Payload: "nope"})
	require.Error(t, err)
}

func TestBroker(t *testing.T) {
	t.Parallel()

	b := NewBroker[int]()
	t.Cleanup(b.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx)
	require.Equal(t, 1, b.GetSubscriberCount())

	b.Publish(CreatedEvent, 7)
	select {
	case ev := <-ch:
		require.Equal(t, Event[int]{Type: CreatedEvent, Payload: 7}, ev)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	require.Eventually(t, func() bool {
		return b.GetSubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := NewBroker[int]()
	ch := b.Subscribe(context.Background())

	for i := range bufferSize * 2 {
		b.Publish(UpdatedEvent, i)
	}
	require.Len(t, ch, bufferSize)

	b.Shutdown()
	b.Shutdown()
	_, open := <-ch
	for open {
		_, open = <-ch
	}

	closed := b.Subscribe(context.Background())
	_, open = <-closed
	require.False(t, open)
}
