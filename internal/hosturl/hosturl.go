// Package hosturl matches host, path and query patterns against request URLs
// and returns the most specific registered entry.
package hosturl

import (
	"bytes"
	"strings"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/rules"
)

const (
	// Separator joins the parts of a composite host or path pattern.
	Separator = "%&%"
	// MaxParts caps the parts kept per pattern; the rest are dropped.
	MaxParts = 10
)

const (
	LevelHost = 0
	LevelPath = 1
)

// Pattern is one registration: host and path are composite patterns, Query
// is the key whose value becomes the version.
type Pattern struct {
	Host    string
	Path    string
	Query   string
	AppID   appid.ID
	Service appid.ID
	Client  appid.ID
	Payload appid.ID
}

// Part is one segment of a composite pattern.
type Part struct {
	Bytes []byte
	Level int
}

// SplitParts splits host then path on Separator, keeping at most MaxParts.
// Empty parts are dropped.
func SplitParts(host, path string) []Part {
	parts := splitLevel(nil, host, LevelHost)
	if path != "" {
		parts = splitLevel(parts, path, LevelPath)
	}
	return parts
}

func splitLevel(parts []Part, pattern string, level int) []Part {
	for _, piece := range strings.Split(pattern, Separator) {
		if len(parts) >= MaxParts {
			break
		}
		if piece == "" {
			continue
		}
		parts = append(parts, Part{Bytes: []byte(piece), Level: level})
	}
	return parts
}

// Entry is a compiled registration.
type Entry struct {
	Pattern
	order int
	host  [][]byte
	path  [][]byte
	size  int
}

func (e *Entry) depth() int {
	if len(e.path) > 0 {
		return 2
	}
	return 1
}

// Matcher is an immutable host/path tree. The first host part of every
// entry is compiled into one automaton; the remaining parts are verified per
// candidate.
type Matcher struct {
	entries []*Entry
	anchors *rules.Matcher[*Entry]
}

// New compiles patterns. Patterns without a host part are skipped.
func New(patterns []Pattern) *Matcher {
	m := &Matcher{}
	var anchors []rules.Entry[*Entry]
	for _, p := range patterns {
		parts := SplitParts(p.Host, p.Path)
		if len(parts) == 0 || parts[0].Level != LevelHost {
			continue
		}
		e := &Entry{Pattern: p, order: len(m.entries)}
		if e.AppID == appid.None {
			e.AppID = rules.PrimaryID(p.Payload, p.Client, p.Service)
		}
		for _, part := range parts {
			lowered := bytes.ToLower(part.Bytes)
			e.size += len(lowered)
			if part.Level == LevelHost {
				e.host = append(e.host, lowered)
			} else {
				e.path = append(e.path, lowered)
			}
		}
		m.entries = append(m.entries, e)
		anchors = append(anchors, rules.Entry[*Entry]{Pattern: e.host[0], Value: e})
	}
	m.anchors = rules.Compile(anchors, true)
	return m
}

// Len reports the number of compiled entries.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Match returns the most specific entry whose every part is satisfied by
// host and path: the first host part must be a domain suffix of host, the
// first path part a prefix of path, and every other part must occur in its
// level's input. Deeper chains win, then longer patterns, then earlier
// registrations.
func (m *Matcher) Match(host, path string) (*Entry, bool) {
	if m == nil || host == "" {
		return nil, false
	}
	hostBuf := []byte(host)
	lowHost := bytes.ToLower(hostBuf)
	lowPath := bytes.ToLower([]byte(path))

	var best *Entry
	m.anchors.Scan(hostBuf, func(e *Entry, end int) bool {
		if end != len(hostBuf) {
			return true
		}
		start := end - len(e.host[0])
		if start > 0 && hostBuf[start-1] != '.' && e.host[0][0] != '.' {
			return true
		}
		if !e.satisfied(lowHost, lowPath) {
			return true
		}
		if best == nil || better(e, best) {
			best = e
		}
		return true
	})
	return best, best != nil
}

func (e *Entry) satisfied(host, path []byte) bool {
	for _, part := range e.host[1:] {
		if !bytes.Contains(host, part) {
			return false
		}
	}
	if len(e.path) == 0 {
		return true
	}
	if !bytes.HasPrefix(path, e.path[0]) {
		return false
	}
	for _, part := range e.path[1:] {
		if !bytes.Contains(path, part) {
			return false
		}
	}
	return true
}

func better(a, b *Entry) bool {
	if a.depth() != b.depth() {
		return a.depth() > b.depth()
	}
	if a.size != b.size {
		return a.size > b.size
	}
	return a.order < b.order
}

// MatchQuery scans key=value tuples separated by '&' and returns the rest of
// the first tuple that starts with key and is longer than it. The key
// comparison is case-sensitive; the result is bounded by MaxVersionLen.
func MatchQuery(query, key string) string {
	if query == "" || key == "" {
		return ""
	}
	for query != "" {
		tuple := query
		if i := strings.IndexByte(query, '&'); i >= 0 {
			tuple, query = query[:i], query[i+1:]
		} else {
			query = ""
		}
		if len(tuple) > len(key) && strings.HasPrefix(tuple, key) {
			return rules.Truncate(tuple[len(key):], rules.MaxVersionLen)
		}
	}
	return ""
}
