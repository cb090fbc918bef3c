// Package flatten turns the message tree of a session into a flat list of
// renderable items for a virtualized list.
//
// A session is a sequence of turns: a user message followed by the
// assistant messages replying to it. Each turn becomes
//
//	user-message, user parts..., (assistant-header, assistant parts...)*
//
// where hidden parts are dropped and empty messages produce nothing. With a
// [Cache], turns whose messages and parts did not change since the previous
// call are returned as the very same *Item values, so a renderer can skip
// them by pointer comparison.
package flatten

import (
	"github.com/charmbracelet/mirror/internal/proto"
)

type Kind string

const (
	KindUserMessage     Kind = "user-message"
	KindAssistantHeader Kind = "assistant-header"
	KindPart            Kind = "part"
)

// Item is one row of the flattened session.
type Item struct {
	ID        string
	Kind      Kind
	TurnID    string
	MessageID string

	// Index is the position of the item in the latest result. It is
	// rewritten on every call, including for items reused from the cache.
	Index         int
	IsFirstInTurn bool
	IsLastInTurn  bool

	// Set on part items only.
	Part        proto.Part
	IsAssistant bool
	IsStreaming bool
	IsSynthetic bool
}

type Params struct {
	// Messages of one session in arrival order.
	Messages []proto.Message
	// GetParts returns the parts of a message as they are now.
	GetParts func(messageID string) []proto.Part
	// Cache is optional. Reuse the same cache across calls for one session.
	Cache *Cache
}

// Flatten builds the render list of a session.
func Flatten(p Params) []*Item {
	if len(p.Messages) == 0 {
		return nil
	}

	getParts := p.GetParts
	if getParts == nil {
		getParts = func(string) []proto.Part { return nil }
	}

	users, replies := partition(p.Messages)

	var (
		items []*Item
		seen  map[string]struct{}
	)
	if p.Cache != nil {
		seen = make(map[string]struct{}, len(users))
	}

	for _, user := range users {
		t := collectTurn(user, replies[user.ID], getParts)

		var turnItems []*Item
		if p.Cache != nil {
			seen[user.ID] = struct{}{}
			turnItems = p.Cache.lookup(user.ID, t)
		} else {
			turnItems = t.build()
		}

		for _, item := range turnItems {
			item.Index = len(items)
			items = append(items, item)
		}
	}

	if p.Cache != nil {
		p.Cache.prune(seen)
	}
	return items
}

// partition splits messages into user messages, in order, and assistant
// replies grouped by the user message they answer. Replies without a parent
// belong to no turn and are dropped.
func partition(messages []proto.Message) ([]proto.UserMessage, map[string][]proto.AssistantMessage) {
	var users []proto.UserMessage
	replies := make(map[string][]proto.AssistantMessage)
	for _, m := range messages {
		switch m := m.(type) {
		case proto.UserMessage:
			users = append(users, m)
		case proto.AssistantMessage:
			if m.ParentID == "" {
				continue
			}
			replies[m.ParentID] = append(replies[m.ParentID], m)
		}
	}
	return users, replies
}

type reply struct {
	msg   proto.AssistantMessage
	parts []proto.Part
}

type turn struct {
	user      proto.UserMessage
	userParts []proto.Part
	replies   []reply
}

func collectTurn(user proto.UserMessage, assistants []proto.AssistantMessage, getParts func(string) []proto.Part) turn {
	t := turn{
		user:      user,
		userParts: getParts(user.ID),
		replies:   make([]reply, 0, len(assistants)),
	}
	for _, a := range assistants {
		t.replies = append(t.replies, reply{msg: a, parts: getParts(a.ID)})
	}
	return t
}

func (t turn) build() []*Item {
	var items []*Item

	if visible := visibleParts(t.userParts); len(visible) > 0 {
		items = append(items, &Item{
			ID:        "user-message-" + t.user.ID,
			Kind:      KindUserMessage,
			TurnID:    t.user.ID,
			MessageID: t.user.ID,
		})
		for _, part := range visible {
			items = append(items, partItem(t.user.ID, t.user.ID, part, false))
		}
	}

	for _, r := range t.replies {
		visible := visibleParts(r.parts)
		if len(visible) == 0 {
			continue
		}
		items = append(items, &Item{
			ID:        "assistant-header-" + r.msg.ID,
			Kind:      KindAssistantHeader,
			TurnID:    t.user.ID,
			MessageID: r.msg.ID,
		})
		for _, part := range visible {
			items = append(items, partItem(t.user.ID, r.msg.ID, part, true))
		}
	}

	if len(items) > 0 {
		items[0].IsFirstInTurn = true
		items[len(items)-1].IsLastInTurn = true
	}
	return items
}

func partItem(turnID, messageID string, part proto.Part, assistant bool) *Item {
	return &Item{
		ID:          "part-" + messageID + "-" + part.GetID(),
		Kind:        KindPart,
		TurnID:      turnID,
		MessageID:   messageID,
		Part:        part,
		IsAssistant: assistant,
		IsStreaming: IsPartStreaming(part),
		IsSynthetic: IsPartSynthetic(part),
	}
}

func visibleParts(parts []proto.Part) []proto.Part {
	var visible []proto.Part
	for _, part := range parts {
		if IsPartVisible(part) {
			visible = append(visible, part)
		}
	}
	return visible
}
