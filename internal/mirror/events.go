package mirror

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/mirror/internal/diff"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/pubsub"
)

// HandleEvent applies an event pushed by the server. Events for sessions
// that are not cached are ignored; they are fetched in full when opened.
// A [proto.ServerConnected] event means events may have been missed, so
// every cached session is flagged for hydration.
func (m *Mirror) HandleEvent(ev any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := eventKey(ev); ok {
		if buffered, inflight := m.fetching[key]; inflight {
			*buffered = append(*buffered, ev)
		}
	}
	m.applyEvent(ev)
}

func eventKey(ev any) (proto.SessionKey, bool) {
	switch e := ev.(type) {
	case pubsub.Event[proto.MessageEvent]:
		return e.Payload.Key(), true
	case pubsub.Event[proto.PartEvent]:
		return e.Payload.Key(), true
	default:
		return proto.SessionKey{}, false
	}
}

// applyEvent must be called with m.mu held.
func (m *Mirror) applyEvent(ev any) {
	switch e := ev.(type) {
	case pubsub.Event[proto.ServerConnected]:
		slog.Info("Event stream connected", "version", e.Payload.Version)
		m.store.MarkAllNeedsHydration()

	case pubsub.Event[proto.Session]:
		key := e.Payload.Key()
		if !m.store.Has(key) {
			return
		}
		if e.Type == pubsub.DeletedEvent {
			m.store.Remove(key)
			m.caches.Del(key)
			m.diffBasis.Del(key)
			return
		}
		m.store.SetSession(e.Payload)

	case pubsub.Event[proto.MessageEvent]:
		key := e.Payload.Key()
		if !m.store.Has(key) || e.Payload.Message == nil {
			return
		}
		if e.Type == pubsub.DeletedEvent {
			m.store.RemoveMessage(key, e.Payload.Message.GetID())
			return
		}
		m.store.UpsertMessage(key, e.Payload.Message)

	case pubsub.Event[proto.PartEvent]:
		key := e.Payload.Key()
		if !m.store.Has(key) || e.Payload.Part == nil {
			return
		}
		if e.Type == pubsub.DeletedEvent {
			m.store.RemovePart(key, e.Payload.Part.GetMessageID(), e.Payload.Part.GetID())
			return
		}
		m.store.UpsertPart(key, e.Payload.Part)

	case pubsub.Event[proto.DiffEvent]:
		key := e.Payload.Key()
		if !m.store.Has(key) {
			return
		}
		diffs := diff.Fill(e.Payload.Diffs)
		if diffs == nil {
			diffs = []proto.FileDiff{}
		}
		summary := diff.Summarize(diffs)
		m.store.SetDiffs(key, diffs)
		m.store.SetSummary(key, &summary)
		m.diffBasis.Set(key, summary)

	default:
		slog.Debug("Ignoring event", "type", fmt.Sprintf("%T", ev))
	}
}
