package mirror

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/mirror/internal/log"
)

// Run applies the server's events for directory, an empty directory meaning
// every project, and sweeps the cache periodically until ctx is done. A
// dropped event stream is reopened after [Options.ReconnectDelay]; sessions
// cached meanwhile are flagged for hydration since events may have been
// lost.
func (m *Mirror) Run(ctx context.Context, directory string) error {
	defer log.RecoverPanic("mirror", nil)

	var sweep <-chan time.Time
	if m.opts.SweepInterval > 0 {
		ticker := time.NewTicker(m.opts.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		events, err := m.transport.SubscribeEvents(ctx, directory)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to subscribe to events", "error", err)
		} else {
			slog.Info("Subscribed to events", "directory", directory)
			if done := m.consume(ctx, events, sweep); done {
				return nil
			}
			m.store.MarkAllNeedsHydration()
			slog.Warn("Event stream closed, reconnecting", "delay", m.opts.ReconnectDelay)
		}

		wait := time.NewTimer(m.opts.ReconnectDelay)
	backoff:
		for {
			select {
			case <-ctx.Done():
				wait.Stop()
				return nil
			case <-sweep:
				m.RunEvictionSweep(m.opts.Now())
			case <-wait.C:
				break backoff
			}
		}
	}
}

// consume reports true when ctx is done, false when the stream ended.
func (m *Mirror) consume(ctx context.Context, events <-chan any, sweep <-chan time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-sweep:
			m.RunEvictionSweep(m.opts.Now())
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() != nil
			}
			m.HandleEvent(ev)
		}
	}
}
