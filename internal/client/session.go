package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/charmbracelet/mirror/internal/diff"
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/pubsub"
)

func directoryQuery(dir string) url.Values {
	if dir == "" {
		return nil
	}
	return url.Values{"directory": []string{dir}}
}

// ListSessions returns the sessions of a project directory. An empty
// directory lists every session the server knows.
func (c *Client) ListSessions(ctx context.Context, directory string) ([]proto.Session, error) {
	var sessions []proto.Session
	if err := c.getJSON(ctx, "list sessions", "/session", directoryQuery(directory), &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns a single session, including its diff summary.
func (c *Client) GetSession(ctx context.Context, key proto.SessionKey) (*proto.Session, error) {
	var sess proto.Session
	if err := c.getJSON(ctx, "get session", "/session/"+url.PathEscape(key.ID), directoryQuery(key.Directory), &sess); err != nil {
		return nil, err
	}
	if sess.Directory == "" {
		sess.Directory = key.Directory
	}
	return &sess, nil
}

// ListMessages returns every message of a session together with its parts.
func (c *Client) ListMessages(ctx context.Context, key proto.SessionKey) ([]proto.MessageWithParts, error) {
	var msgs []proto.MessageWithParts
	if err := c.getJSON(ctx, "get messages", "/session/"+url.PathEscape(key.ID)+"/message", directoryQuery(key.Directory), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListDiffs returns the file diffs of a session. Line counts the server left
// out are computed locally.
func (c *Client) ListDiffs(ctx context.Context, key proto.SessionKey) ([]proto.FileDiff, error) {
	var diffs []proto.FileDiff
	if err := c.getJSON(ctx, "get diffs", "/session/"+url.PathEscape(key.ID)+"/diff", directoryQuery(key.Directory), &diffs); err != nil {
		return nil, err
	}
	if diffs == nil {
		diffs = []proto.FileDiff{}
	}
	return diff.Fill(diffs), nil
}

// SubscribeEvents opens the server's event stream. The returned channel
// carries [pubsub.Event] values and is closed when the stream ends or ctx is
// done.
func (c *Client) SubscribeEvents(ctx context.Context, directory string) (<-chan any, error) {
	rsp, err := c.get(ctx, "/event", directoryQuery(directory), http.Header{
		"Accept":        []string{"text/event-stream"},
		"Cache-Control": []string{"no-cache"},
		"Connection":    []string{"keep-alive"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	if rsp.StatusCode != http.StatusOK {
		defer rsp.Body.Close()
		return nil, newStatusError("subscribe to events", rsp)
	}

	events := make(chan any, 100)
	go func() {
		defer close(events)
		defer rsp.Body.Close()

		scr := bufio.NewReader(rsp.Body)
		for {
			line, err := scr.ReadBytes('\n')
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					slog.Error("reading from events stream", "error", err)
				}
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				// End of an event
				continue
			}

			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				if !bytes.HasPrefix(line, []byte(":")) && !bytes.HasPrefix(line, []byte("event:")) {
					slog.Warn("invalid event format", "line", string(line))
				}
				continue
			}

			ev, err := pubsub.Decode(bytes.TrimSpace(data))
			if err != nil {
				slog.Warn("skipping event", "error", err)
				continue
			}
			if !sendEvent(ctx, events, ev) {
				return
			}
		}
	}()

	return events, nil
}

func sendEvent(ctx context.Context, evc chan any, ev any) bool {
	slog.Debug("event received", "event", fmt.Sprintf("%T", ev))
	select {
	case evc <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
