package rules

import "github.com/klyr/appid/internal/appid"

// Discipline controls whether a table scan stops at the first hit.
type Discipline uint8

const (
	Single Discipline = iota
	Multiple
)

func (d Discipline) String() string {
	if d == Multiple {
		return "multiple"
	}
	return "single"
}

// Pattern is one signature: the bytes to find and the identifiers a hit
// implies. AppID is the identifier the table reports for the hit.
type Pattern struct {
	Bytes      []byte
	AppID      appid.ID
	Service    appid.ID
	Client     appid.ID
	Payload    appid.ID
	Discipline Discipline
}

// Match is one occurrence found by a table scan. End is one past the last
// matched byte.
type Match struct {
	Pattern *Pattern
	End     int
}

// Start is the offset of the first matched byte.
func (m Match) Start() int {
	return m.End - len(m.Pattern.Bytes)
}

// Table owns a pattern list and its compiled matcher.
type Table struct {
	patterns []*Pattern
	matcher  *Matcher[*Pattern]
}

// NewTable copies patterns and compiles them.
func NewTable(patterns []Pattern, fold bool) *Table {
	t := &Table{patterns: make([]*Pattern, 0, len(patterns))}
	entries := make([]Entry[*Pattern], 0, len(patterns))
	for _, p := range patterns {
		owned := p
		owned.Bytes = append([]byte(nil), p.Bytes...)
		t.patterns = append(t.patterns, &owned)
		entries = append(entries, Entry[*Pattern]{Pattern: owned.Bytes, Value: &owned})
	}
	t.matcher = Compile(entries, fold)
	return t
}

// Find returns the matches in buf in position order. The scan ends after the
// first hit of a Single pattern.
func (t *Table) Find(buf []byte) []Match {
	if t == nil {
		return nil
	}
	var matches []Match
	t.matcher.Scan(buf, func(p *Pattern, end int) bool {
		matches = append(matches, Match{Pattern: p, End: end})
		return p.Discipline != Single
	})
	return matches
}

// Len reports the number of patterns in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.patterns)
}
