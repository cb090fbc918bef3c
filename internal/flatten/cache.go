package flatten

import (
	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/zeebo/xxh3"
)

// Cache remembers the items built for each turn of one session, keyed by
// the ID of the turn's user message, together with a hash of everything the
// items were built from. It is not safe for concurrent use.
type Cache struct {
	turns map[string]cachedTurn
}

type cachedTurn struct {
	stamp uint64
	items []*Item
}

func NewCache() *Cache {
	return &Cache{turns: make(map[string]cachedTurn)}
}

// Len returns the number of turns held.
func (c *Cache) Len() int {
	return len(c.turns)
}

// Reset forgets every turn.
func (c *Cache) Reset() {
	clear(c.turns)
}

func (c *Cache) lookup(turnID string, t turn) []*Item {
	if c.turns == nil {
		c.turns = make(map[string]cachedTurn)
	}
	stamp, ok := t.stamp()
	if !ok {
		delete(c.turns, turnID)
		return t.build()
	}
	if cached, hit := c.turns[turnID]; hit && cached.stamp == stamp {
		return cached.items
	}
	items := t.build()
	c.turns[turnID] = cachedTurn{stamp: stamp, items: items}
	return items
}

func (c *Cache) prune(seen map[string]struct{}) {
	for id := range c.turns {
		if _, ok := seen[id]; !ok {
			delete(c.turns, id)
		}
	}
}

// stamp hashes the encoded messages and parts of a turn. It reports false
// for turns holding values that cannot be encoded, which are never cached.
func (t turn) stamp() (uint64, bool) {
	h := xxh3.New()

	write := func(b []byte, err error) bool {
		if err != nil {
			return false
		}
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{0})
		return true
	}
	writeParts := func(parts []proto.Part) bool {
		_, _ = h.Write([]byte{1})
		for _, part := range parts {
			if part == nil {
				_, _ = h.Write([]byte{2})
				continue
			}
			if !write(proto.MarshalPart(part)) {
				return false
			}
		}
		return true
	}

	if !write(proto.MarshalMessage(t.user)) || !writeParts(t.userParts) {
		return 0, false
	}
	for _, r := range t.replies {
		_, _ = h.Write([]byte{3})
		if !write(proto.MarshalMessage(r.msg)) || !writeParts(r.parts) {
			return 0, false
		}
	}
	return h.Sum64(), true
}
