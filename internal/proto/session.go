package proto

import (
	"fmt"
	"strings"
	"time"
)

// SessionKey identifies a session across projects. Session IDs are only
// unique within a directory, so the directory is part of the key.
type SessionKey struct {
	Directory string `json:"directory"`
	ID        string `json:"id"`
}

// String renders the key as "id@directory".
func (k SessionKey) String() string {
	return k.ID + "@" + k.Directory
}

// IsZero checks if the SessionKey is zero-valued.
func (k SessionKey) IsZero() bool {
	return k == SessionKey{}
}

// ParseSessionKey parses a key rendered by [SessionKey.String]. A string
// without "@" is treated as a bare session ID with an empty directory.
func ParseSessionKey(s string) (SessionKey, error) {
	id, dir, _ := strings.Cut(s, "@")
	if id == "" {
		return SessionKey{}, fmt.Errorf("invalid session key: %q", s)
	}
	return SessionKey{Directory: dir, ID: id}, nil
}

type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

type Session struct {
	ID        string       `json:"id"`
	Directory string       `json:"directory"`
	Title     string       `json:"title"`
	ParentID  string       `json:"parentID,omitempty"`
	Depth     int          `json:"depth,omitempty"`
	Time      SessionTime  `json:"time"`
	Summary   *DiffSummary `json:"summary,omitempty"`
}

func (s Session) Key() SessionKey {
	return SessionKey{Directory: s.Directory, ID: s.ID}
}

// IsSubagent reports whether the session was spawned by another session.
func (s Session) IsSubagent() bool {
	return s.ParentID != ""
}

// DiffSummary is the cheap change count the server keeps on a session. It is
// obtainable without transferring diff bodies.
type DiffSummary struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Files     int `json:"files"`
}

// IsZero reports whether the summary describes no changes at all.
func (s DiffSummary) IsZero() bool {
	return s == DiffSummary{}
}

type FileDiff struct {
	File      string `json:"file"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// CacheEntry is the per-session bookkeeping used by eviction.
type CacheEntry struct {
	LastAccess time.Time `json:"last_access"`
}

// SessionCacheEntry pairs a [CacheEntry] with the key it belongs to.
type SessionCacheEntry struct {
	Key SessionKey
	CacheEntry
}
