// Package eviction selects cached sessions to drop so the cache stays within
// its idle time and capacity bounds.
package eviction

import (
	"cmp"
	"slices"
	"time"

	"github.com/charmbracelet/mirror/internal/proto"
)

type Params struct {
	Entries []proto.SessionCacheEntry
	// Active sessions are open in the UI and are never evicted.
	Active map[proto.SessionKey]struct{}
	// MaxSessions bounds the number of cached sessions. Zero or less
	// disables the capacity sweep.
	MaxSessions int
	// TTL bounds how long an inactive session stays cached after its last
	// access. Zero or less disables the TTL sweep.
	TTL time.Duration
	Now time.Time
}

// SelectSessionEvictions returns the keys of the sessions to remove, oldest
// access first.
//
// Entries idle for longer than the TTL go first. If the cache still holds
// more than MaxSessions entries afterwards, the least recently accessed
// inactive entries go until it fits or only active entries remain.
func SelectSessionEvictions(p Params) []proto.SessionKey {
	candidates := make([]proto.SessionCacheEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if _, ok := p.Active[e.Key]; ok {
			continue
		}
		candidates = append(candidates, e)
	}
	slices.SortFunc(candidates, compareEntries)

	var evicted []proto.SessionKey
	remaining := candidates[:0:0]
	for _, e := range candidates {
		if p.TTL > 0 && p.Now.Sub(e.LastAccess) > p.TTL {
			evicted = append(evicted, e.Key)
			continue
		}
		remaining = append(remaining, e)
	}

	if p.MaxSessions > 0 {
		total := len(p.Entries) - len(evicted)
		for _, e := range remaining {
			if total <= p.MaxSessions {
				break
			}
			evicted = append(evicted, e.Key)
			total--
		}
	}

	return evicted
}

func compareEntries(a, b proto.SessionCacheEntry) int {
	if c := a.LastAccess.Compare(b.LastAccess); c != 0 {
		return c
	}
	return cmp.Compare(a.Key.String(), b.Key.String())
}
