package mirror

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/charmbracelet/mirror/internal/flatten"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/pubsub"
	"github.com/charmbracelet/mirror/internal/store"
	"github.com/google/uuid"
)

// View is one open presentation of a session. A session with an open view
// is active and is never evicted.
type View struct {
	ID  string
	Key proto.SessionKey

	m      *Mirror
	closed atomic.Bool
}

// OpenView marks a session active until the returned view is closed.
// Several views of one session may be open at once.
func (m *Mirror) OpenView(key proto.SessionKey) *View {
	v := &View{
		ID:  uuid.NewString(),
		Key: key,
		m:   m,
	}

	m.mu.Lock()
	views, ok := m.views[key]
	if !ok {
		views = make(map[string]*View)
		m.views[key] = views
	}
	views[v.ID] = v
	m.mu.Unlock()

	m.Touch(key)
	slog.Debug("Opened view", "session", key.String(), "view", v.ID)
	return v
}

// Close releases the view. Fetches still in flight on its behalf are
// discarded. Closing twice is a no-op.
func (v *View) Close() {
	if !v.closed.CompareAndSwap(false, true) {
		return
	}

	m := v.m
	m.mu.Lock()
	if views, ok := m.views[v.Key]; ok {
		delete(views, v.ID)
		if len(views) == 0 {
			delete(m.views, v.Key)
		}
	}
	m.mu.Unlock()

	m.Touch(v.Key)
	slog.Debug("Closed view", "session", v.Key.String(), "view", v.ID)
}

func (v *View) Closed() bool {
	return v.closed.Load()
}

// Hydrate fetches the session's messages for this view, see
// [Mirror.HydrateMessages]. It returns [ErrViewClosed] if the view is closed
// before the data arrives.
func (v *View) Hydrate(ctx context.Context, force bool) error {
	return v.m.hydrateMessages(ctx, v.Key, force, v)
}

// Items touches the session and returns its render list.
func (v *View) Items() []*flatten.Item {
	v.m.Touch(v.Key)
	return v.m.GetFlatItems(v.Key)
}

// Changes returns the changes made to the session's data. The channel is
// closed when ctx is done.
func (v *View) Changes(ctx context.Context) <-chan pubsub.Event[store.Change] {
	return v.m.Subscribe(ctx, v.Key)
}
