// Package mirror keeps a local, incrementally updated copy of the sessions a
// client is looking at. It decides when to fetch from the server, applies
// pushed events, drops idle sessions and hands out render lists.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/mirror/internal/config"
	"github.com/charmbracelet/mirror/internal/csync"
	"github.com/charmbracelet/mirror/internal/diff"
	"github.com/charmbracelet/mirror/internal/eviction"
	"github.com/charmbracelet/mirror/internal/flatten"
	"github.com/charmbracelet/mirror/internal/hydration"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/pubsub"
	"github.com/charmbracelet/mirror/internal/store"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionNotFound is returned when the server does not know a session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrViewClosed is returned by fetches made on behalf of a view that was
	// closed before the response arrived. The response is discarded.
	ErrViewClosed = errors.New("view closed")
)

// Transport fetches session data from the server.
type Transport interface {
	GetSession(ctx context.Context, key proto.SessionKey) (*proto.Session, error)
	ListMessages(ctx context.Context, key proto.SessionKey) ([]proto.MessageWithParts, error)
	ListDiffs(ctx context.Context, key proto.SessionKey) ([]proto.FileDiff, error)
	SubscribeEvents(ctx context.Context, directory string) (<-chan any, error)
}

type Options struct {
	// MaxSessions and TTL bound the cache, see [eviction.Params].
	MaxSessions int
	TTL         time.Duration
	// SweepInterval is how often Run evicts. Zero disables the sweep.
	SweepInterval time.Duration
	// ReconnectDelay is how long Run waits before reopening a failed event
	// stream.
	ReconnectDelay time.Duration
	Now            func() time.Time
}

// OptionsFromConfig returns the options described by cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxSessions:   cfg.Cache.MaxSessions,
		TTL:           cfg.TTL(),
		SweepInterval: cfg.SweepInterval(),
	}
}

// Mirror is safe for concurrent use.
type Mirror struct {
	opts      Options
	transport Transport
	store     *store.Store
	flight    singleflight.Group

	// mu guards views, waiters, fetching and calls. It is held while a
	// fetched snapshot is committed so events cannot interleave with the
	// commit.
	mu       sync.Mutex
	views    map[proto.SessionKey]map[string]*View
	waiters  map[proto.SessionKey]*waiters
	fetching map[proto.SessionKey]*[]any
	calls    map[string]*sharedCall

	caches *csync.Map[proto.SessionKey, *flatCache]
	// diffBasis holds the summary the cached diffs of a session were fetched
	// under.
	diffBasis *csync.Map[proto.SessionKey, proto.DiffSummary]
}

type flatCache struct {
	mu    sync.Mutex
	cache *flatten.Cache
}

// sharedCall is the context a coalesced request runs under. It is cancelled
// once every caller has given up on it.
type sharedCall struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// waiters tracks who is blocked on a message fetch for one session.
type waiters struct {
	direct int
	views  map[*View]int
}

func New(transport Transport, opts Options) *Mirror {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	return &Mirror{
		opts:      opts,
		transport: transport,
		store:     store.New(),
		views:     make(map[proto.SessionKey]map[string]*View),
		waiters:   make(map[proto.SessionKey]*waiters),
		fetching:  make(map[proto.SessionKey]*[]any),
		calls:     make(map[string]*sharedCall),
		caches:    csync.NewMap[proto.SessionKey, *flatCache](),
		diffBasis: csync.NewMap[proto.SessionKey, proto.DiffSummary](),
	}
}

// Shutdown closes every change subscription.
func (m *Mirror) Shutdown() {
	m.store.Shutdown()
}

// Session returns the cached metadata of a session.
func (m *Mirror) Session(key proto.SessionKey) (proto.Session, bool) {
	return m.store.Session(key)
}

// Cached reports whether anything of a session is held locally.
func (m *Mirror) Cached(key proto.SessionKey) bool {
	return m.store.Has(key)
}

// Len returns the number of cached sessions.
func (m *Mirror) Len() int {
	return m.store.Len()
}

// Subscribe returns the changes made to one session's data.
func (m *Mirror) Subscribe(ctx context.Context, key proto.SessionKey) <-chan pubsub.Event[store.Change] {
	return m.store.Subscribe(ctx, key)
}

// Touch records an access to a session.
func (m *Mirror) Touch(key proto.SessionKey) {
	m.store.Touch(key, m.opts.Now())
}

// HydrateMessages makes sure the messages of a session are cached, fetching
// them unless the cache can be trusted. Concurrent calls for one session
// share a single request. On failure the cache is left as it was.
func (m *Mirror) HydrateMessages(ctx context.Context, key proto.SessionKey, force bool) error {
	return m.hydrateMessages(ctx, key, force, nil)
}

type fetchResult struct {
	messages []proto.MessageWithParts
	written  bool
}

func (m *Mirror) hydrateMessages(ctx context.Context, key proto.SessionKey, force bool, v *View) error {
	if v != nil && v.Closed() {
		return ErrViewClosed
	}
	if !hydration.ShouldFetchSessionMessages(m.store.Messages(key), m.store.NeedsHydration(key), force) {
		return nil
	}

	m.addWaiter(key, v)
	res, err := m.do(ctx, "messages:"+key.String(), func(ctx context.Context) (any, error) {
		return m.fetchMessages(ctx, key)
	})
	m.removeWaiter(key, v)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return m.fetchError("messages", key, err)
	}
	if v != nil && v.Closed() {
		return ErrViewClosed
	}
	if r := res.(*fetchResult); !r.written {
		// Joined a fetch that nobody else still wanted.
		m.mu.Lock()
		m.commitMessages(key, r.messages, nil)
		m.mu.Unlock()
	}
	return nil
}

func (m *Mirror) fetchMessages(ctx context.Context, key proto.SessionKey) (*fetchResult, error) {
	buffered := new([]any)
	m.mu.Lock()
	m.fetching[key] = buffered
	m.mu.Unlock()

	msgs, err := m.transport.ListMessages(ctx, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetching[key] == buffered {
		delete(m.fetching, key)
	}
	if err != nil {
		return nil, err
	}

	res := &fetchResult{messages: msgs}
	if m.wantedLocked(key) {
		m.commitMessages(key, msgs, *buffered)
		res.written = true
	} else {
		slog.Debug("Discarding messages for closed views", "session", key.String())
	}
	return res, nil
}

// commitMessages must be called with m.mu held. Events that arrived while
// the snapshot was in flight are applied on top of it.
func (m *Mirror) commitMessages(key proto.SessionKey, msgs []proto.MessageWithParts, buffered []any) {
	m.store.SetMessages(key, msgs)
	for _, ev := range buffered {
		m.applyEvent(ev)
	}
	m.store.Touch(key, m.opts.Now())
	slog.Debug("Hydrated session messages", "session", key.String(), "messages", len(msgs), "replayed", len(buffered))
}

// do runs fn once for all concurrent callers using the same name. The
// request is not tied to any single caller: a caller whose ctx is done
// returns early while the others keep waiting, and the request is only
// cancelled when no caller is left.
func (m *Mirror) do(ctx context.Context, name string, fn func(context.Context) (any, error)) (any, error) {
	m.mu.Lock()
	c, ok := m.calls[name]
	if !ok {
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &sharedCall{ctx: cctx, cancel: cancel}
		m.calls[name] = c
	}
	c.refs++
	m.mu.Unlock()
	defer m.release(name, c)

	ch := m.flight.DoChan(name, func() (any, error) {
		return fn(c.ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

func (m *Mirror) release(name string, c *sharedCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.refs--
	if c.refs > 0 {
		return
	}
	c.cancel()
	if m.calls[name] == c {
		delete(m.calls, name)
	}
	// Later callers must not join a request that was just cancelled.
	m.flight.Forget(name)
}

func (m *Mirror) addWaiter(key proto.SessionKey, v *View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.waiters[key]
	if !ok {
		w = &waiters{views: make(map[*View]int)}
		m.waiters[key] = w
	}
	if v == nil {
		w.direct++
	} else {
		w.views[v]++
	}
}

func (m *Mirror) removeWaiter(key proto.SessionKey, v *View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.waiters[key]
	if !ok {
		return
	}
	if v == nil {
		w.direct--
	} else if w.views[v]--; w.views[v] <= 0 {
		delete(w.views, v)
	}
	if w.direct <= 0 && len(w.views) == 0 {
		delete(m.waiters, key)
	}
}

// wantedLocked reports whether a fetch result for key still has a reader:
// a direct caller or a waiting view that is still open.
func (m *Mirror) wantedLocked(key proto.SessionKey) bool {
	w, ok := m.waiters[key]
	if !ok {
		return false
	}
	if w.direct > 0 {
		return true
	}
	for v := range w.views {
		if !v.Closed() {
			return true
		}
	}
	return false
}

// HydrateDiffs refreshes the diff summary of a session and fetches its file
// diffs when the summary says the cached ones are missing or stale.
func (m *Mirror) HydrateDiffs(ctx context.Context, key proto.SessionKey, force bool) error {
	sess, err := m.transport.GetSession(ctx, key)
	if err != nil {
		return m.fetchError("session", key, err)
	}
	if sess.Directory == "" {
		sess.Directory = key.Directory
	}

	summary := sess.Summary
	var basis *proto.DiffSummary
	if b, ok := m.diffBasis.Get(key); ok {
		basis = &b
	}
	if !hydration.ShouldFetchSessionDiffsSince(m.store.Diffs(key), basis, summary, force) {
		m.store.SetSession(*sess)
		if summary != nil && summary.IsZero() && len(m.store.Diffs(key)) > 0 {
			m.store.SetDiffs(key, []proto.FileDiff{})
			m.diffBasis.Set(key, *summary)
		}
		m.Touch(key)
		return nil
	}

	res, err := m.do(ctx, "diffs:"+key.String(), func(ctx context.Context) (any, error) {
		return m.transport.ListDiffs(ctx, key)
	})
	if err != nil {
		// The new summary is not stored either, so it keeps matching the
		// cached diffs.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return m.fetchError("diffs", key, err)
	}

	diffs := diff.Fill(res.([]proto.FileDiff))
	if diffs == nil {
		diffs = []proto.FileDiff{}
	}
	m.store.SetSession(*sess)
	m.store.SetDiffs(key, diffs)
	if summary != nil {
		m.diffBasis.Set(key, *summary)
	} else {
		m.diffBasis.Set(key, diff.Summarize(diffs))
	}
	m.Touch(key)
	return nil
}

func (m *Mirror) fetchError(what string, key proto.SessionKey, err error) error {
	var nf interface{ NotFound() bool }
	if errors.As(err, &nf) && nf.NotFound() {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	slog.Warn("Failed to fetch session data", "what", what, "session", key.String(), "error", err)
	return fmt.Errorf("failed to fetch %s of session %s: %w", what, key, err)
}

// GetFlatItems returns the render list of a cached session. Items of turns
// that did not change since the previous call are the same pointers.
// Sessions that are not cached have no items and get no render cache.
func (m *Mirror) GetFlatItems(key proto.SessionKey) []*flatten.Item {
	if !m.store.Has(key) {
		return nil
	}
	fc := m.caches.GetOrSet(key, func() *flatCache {
		return &flatCache{cache: flatten.NewCache()}
	})
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return flatten.Flatten(flatten.Params{
		Messages: m.store.Messages(key),
		GetParts: func(messageID string) []proto.Part {
			return m.store.Parts(key, messageID)
		},
		Cache: fc.cache,
	})
}

// GetDiffs returns the cached file diffs of a session.
func (m *Mirror) GetDiffs(key proto.SessionKey) []proto.FileDiff {
	return m.store.Diffs(key)
}

// GetDiffSummary returns the latest known change summary of a session.
func (m *Mirror) GetDiffSummary(key proto.SessionKey) *proto.DiffSummary {
	return m.store.Summary(key)
}

// ActiveSessions returns the sessions that have at least one open view.
func (m *Mirror) ActiveSessions() map[proto.SessionKey]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

func (m *Mirror) activeLocked() map[proto.SessionKey]struct{} {
	active := make(map[proto.SessionKey]struct{}, len(m.views))
	for key, views := range m.views {
		if len(views) > 0 {
			active[key] = struct{}{}
		}
	}
	return active
}

// RunEvictionSweep drops idle and excess sessions. Evicted sessions lose
// their render cache too, and are fetched again on their next use.
func (m *Mirror) RunEvictionSweep(now time.Time) []proto.SessionKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := eviction.SelectSessionEvictions(eviction.Params{
		Entries:     m.store.Entries(),
		Active:      m.activeLocked(),
		MaxSessions: m.opts.MaxSessions,
		TTL:         m.opts.TTL,
		Now:         now,
	})
	if len(evicted) == 0 {
		return nil
	}

	m.store.Remove(evicted...)
	for _, key := range evicted {
		m.caches.Del(key)
		m.diffBasis.Del(key)
	}
	slog.Debug("Evicted sessions", "count", len(evicted), "remaining", m.store.Len())
	return evicted
}
