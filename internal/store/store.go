// Package store holds the local mirror of the server's sessions. It keeps
// data only; deciding what to fetch or drop is up to its callers.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/pubsub"
)

type ChangeKind string

const (
	ChangeSession  ChangeKind = "session"
	ChangeMessages ChangeKind = "messages"
	ChangeMessage  ChangeKind = "message"
	ChangePart     ChangeKind = "part"
	ChangeDiffs    ChangeKind = "diffs"
	ChangeEvicted  ChangeKind = "evicted"
)

// Change describes a mutation of one session's data.
type Change struct {
	Key       proto.SessionKey
	Kind      ChangeKind
	MessageID string
	PartID    string
}

type entry struct {
	session        *proto.Session
	messages       []proto.Message
	parts          map[string][]proto.Part
	diffs          []proto.FileDiff
	summary        *proto.DiffSummary
	lastAccess     time.Time
	needsHydration bool
}

func newEntry() *entry {
	return &entry{
		parts:          make(map[string][]proto.Part),
		needsHydration: true,
	}
}

func (e *entry) messageIndex(id string) int {
	return slices.IndexFunc(e.messages, func(m proto.Message) bool {
		return m.GetID() == id
	})
}

// Store maps session keys to their messages, parts and diffs. All methods
// are safe for concurrent use; mutations are serialized.
type Store struct {
	mu      sync.RWMutex
	entries map[proto.SessionKey]*entry
	brokers map[proto.SessionKey]*pubsub.Broker[Change]
}

func New() *Store {
	return &Store{
		entries: make(map[proto.SessionKey]*entry),
		brokers: make(map[proto.SessionKey]*pubsub.Broker[Change]),
	}
}

// Subscribe returns a channel of changes to a single session. The channel is
// closed when ctx is done.
func (s *Store) Subscribe(ctx context.Context, key proto.SessionKey) <-chan pubsub.Event[Change] {
	s.mu.Lock()
	s.pruneBrokersLocked()
	b, ok := s.brokers[key]
	if !ok {
		b = pubsub.NewBroker[Change]()
		s.brokers[key] = b
	}
	s.mu.Unlock()
	return b.Subscribe(ctx)
}

// Shutdown closes every subscription.
func (s *Store) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.brokers {
		b.Shutdown()
		delete(s.brokers, key)
	}
}

// pruneBrokersLocked drops the brokers of uncached sessions that nobody
// listens to anymore. It must be called with s.mu held for writing.
func (s *Store) pruneBrokersLocked() {
	for key, b := range s.brokers {
		if _, cached := s.entries[key]; cached {
			continue
		}
		if b.GetSubscriberCount() == 0 {
			b.Shutdown()
			delete(s.brokers, key)
		}
	}
}

// publish must be called with s.mu held.
func (s *Store) publish(t pubsub.EventType, c Change) {
	if b, ok := s.brokers[c.Key]; ok {
		b.Publish(t, c)
	}
}

// ensure must be called with s.mu held for writing.
func (s *Store) ensure(key proto.SessionKey) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = newEntry()
		s.entries[key] = e
	}
	return e
}

func (s *Store) Has(key proto.SessionKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Session(key proto.SessionKey) (proto.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.session == nil {
		return proto.Session{}, false
	}
	return *e.session, true
}

func (s *Store) SetSession(session proto.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := session.Key()
	e := s.ensure(key)
	e.session = &session
	if session.Summary != nil {
		summary := *session.Summary
		e.summary = &summary
	}
	s.publish(pubsub.UpdatedEvent, Change{Key: key, Kind: ChangeSession})
}

// Messages returns the messages of a session in arrival order.
func (s *Store) Messages(key proto.SessionKey) []proto.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	return slices.Clone(e.messages)
}

func (s *Store) Parts(key proto.SessionKey, messageID string) []proto.Part {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	return slices.Clone(e.parts[messageID])
}

// SetMessages replaces every message and part of a session with a freshly
// fetched snapshot and clears its hydration flag.
func (s *Store) SetMessages(key proto.SessionKey, messages []proto.MessageWithParts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	e.messages = make([]proto.Message, 0, len(messages))
	e.parts = make(map[string][]proto.Part, len(messages))
	for _, m := range messages {
		e.messages = append(e.messages, m.Info)
		e.parts[m.Info.GetID()] = slices.Clone(m.Parts)
	}
	e.needsHydration = false
	s.publish(pubsub.UpdatedEvent, Change{Key: key, Kind: ChangeMessages})
}

// UpsertMessage replaces the message with the same ID in place or appends it.
func (s *Store) UpsertMessage(key proto.SessionKey, msg proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	typ := pubsub.UpdatedEvent
	if i := e.messageIndex(msg.GetID()); i >= 0 {
		e.messages[i] = msg
	} else {
		e.messages = append(e.messages, msg)
		typ = pubsub.CreatedEvent
	}
	s.publish(typ, Change{Key: key, Kind: ChangeMessage, MessageID: msg.GetID()})
}

// RemoveMessage drops a message and its parts.
func (s *Store) RemoveMessage(key proto.SessionKey, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	i := e.messageIndex(messageID)
	if i < 0 {
		return
	}
	e.messages = slices.Delete(e.messages, i, i+1)
	delete(e.parts, messageID)
	s.publish(pubsub.DeletedEvent, Change{Key: key, Kind: ChangeMessage, MessageID: messageID})
}

// UpsertPart replaces the part with the same ID in place or appends it to
// its message.
func (s *Store) UpsertPart(key proto.SessionKey, part proto.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	msgID := part.GetMessageID()
	parts := e.parts[msgID]
	typ := pubsub.UpdatedEvent
	i := slices.IndexFunc(parts, func(p proto.Part) bool { return p.GetID() == part.GetID() })
	if i >= 0 {
		// Copy on write; slices handed out by Parts must not change.
		parts = slices.Clone(parts)
		parts[i] = part
	} else {
		parts = append(slices.Clip(parts), part)
		typ = pubsub.CreatedEvent
	}
	e.parts[msgID] = parts
	s.publish(typ, Change{Key: key, Kind: ChangePart, MessageID: msgID, PartID: part.GetID()})
}

func (s *Store) RemovePart(key proto.SessionKey, messageID, partID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	parts := e.parts[messageID]
	i := slices.IndexFunc(parts, func(p proto.Part) bool { return p.GetID() == partID })
	if i < 0 {
		return
	}
	e.parts[messageID] = slices.Delete(slices.Clone(parts), i, i+1)
	s.publish(pubsub.DeletedEvent, Change{Key: key, Kind: ChangePart, MessageID: messageID, PartID: partID})
}

func (s *Store) Diffs(key proto.SessionKey) []proto.FileDiff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	return slices.Clone(e.diffs)
}

func (s *Store) SetDiffs(key proto.SessionKey, diffs []proto.FileDiff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	e.diffs = slices.Clone(diffs)
	s.publish(pubsub.UpdatedEvent, Change{Key: key, Kind: ChangeDiffs})
}

func (s *Store) Summary(key proto.SessionKey) *proto.DiffSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.summary == nil {
		return nil
	}
	summary := *e.summary
	return &summary
}

func (s *Store) SetSummary(key proto.SessionKey, summary *proto.DiffSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	if summary == nil {
		e.summary = nil
	} else {
		v := *summary
		e.summary = &v
	}
	s.publish(pubsub.UpdatedEvent, Change{Key: key, Kind: ChangeDiffs})
}

// Touch records an access to a session, creating its entry if needed.
func (s *Store) Touch(key proto.SessionKey, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(key).lastAccess = at
}

// Entries returns the cache bookkeeping of every session.
func (s *Store) Entries() []proto.SessionCacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]proto.SessionCacheEntry, 0, len(s.entries))
	for key, e := range s.entries {
		entries = append(entries, proto.SessionCacheEntry{
			Key:        key,
			CacheEntry: proto.CacheEntry{LastAccess: e.lastAccess},
		})
	}
	return entries
}

// Remove drops sessions entirely. Their next access starts from a cold
// cache.
func (s *Store) Remove(keys ...proto.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, ok := s.entries[key]; !ok {
			continue
		}
		delete(s.entries, key)
		s.publish(pubsub.DeletedEvent, Change{Key: key, Kind: ChangeEvicted})
	}
	s.pruneBrokersLocked()
}

// NeedsHydration reports whether a session has to be refetched. Unknown
// sessions always do.
func (s *Store) NeedsHydration(key proto.SessionKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return !ok || e.needsHydration
}

func (s *Store) MarkNeedsHydration(key proto.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.needsHydration = true
	}
}

func (s *Store) MarkAllNeedsHydration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.needsHydration = true
	}
}
