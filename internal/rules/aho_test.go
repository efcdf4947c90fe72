package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klyr/appid/internal/appid"
)

func TestMatcherReportsEveryOccurrenceInOrder(t *testing.T) {
	m := Compile([]Entry[string]{
		{Pattern: []byte("he"), Value: "he"},
		{Pattern: []byte("she"), Value: "she"},
		{Pattern: []byte("hers"), Value: "hers"},
	}, false)

	type hit struct {
		value string
		end   int
	}
	var got []hit
	m.Scan([]byte("ushers"), func(v string, end int) bool {
		got = append(got, hit{v, end})
		return true
	})

	want := []hit{{"he", 4}, {"she", 4}, {"hers", 6}}
	if len(got) != len(want) {
		t.Fatalf("expected %d hits, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hit %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestMatcherFoldsCase(t *testing.T) {
	m := Compile([]Entry[int]{{Pattern: []byte("Chrome"), Value: 1}}, true)
	count := 0
	m.Scan([]byte("xx CHROME/58 chrome"), func(int, int) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("expected 2 folded hits, got %d", count)
	}

	exact := Compile([]Entry[int]{{Pattern: []byte("%&%"), Value: 1}}, false)
	count = 0
	exact.Scan([]byte("a%&%b"), func(int, int) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("expected structural token hit, got %d", count)
	}
}

func TestMatcherEmptyAndNil(t *testing.T) {
	m := Compile([]Entry[int]{{Pattern: nil, Value: 1}}, false)
	if m.Len() != 0 {
		t.Fatalf("expected empty pattern to be skipped")
	}
	m.Scan([]byte("anything"), func(int, int) bool {
		t.Fatalf("empty matcher reported a hit")
		return false
	})

	var nilMatcher *Matcher[int]
	nilMatcher.Scan([]byte("x"), func(int, int) bool {
		t.Fatalf("nil matcher reported a hit")
		return false
	})
}

func TestTableSingleStopsAtFirstHit(t *testing.T) {
	table := NewTable([]Pattern{
		{Bytes: []byte("gmail.com"), AppID: appid.Gmail, Payload: appid.Gmail, Discipline: Single},
	}, true)

	matches := table.Find([]byte("mail.gmail.com"))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].End != len("mail.gmail.com") || matches[0].Start() != 5 {
		t.Fatalf("unexpected span %d..%d", matches[0].Start(), matches[0].End)
	}

	matches = table.Find([]byte("gmail.com gmail.com"))
	if len(matches) != 1 {
		t.Fatalf("single discipline should stop after the first hit, got %d", len(matches))
	}
}

func TestTableMultipleCollectsAll(t *testing.T) {
	table := NewTable(UserAgentPatterns(), true)
	matches := table.Find([]byte("Mozilla/5.0 Chrome/58.0 Safari/537.36"))

	var ids []appid.ID
	for _, m := range matches {
		ids = append(ids, m.Pattern.Client)
	}
	if len(ids) != 2 || ids[0] != appid.Chrome || ids[1] != appid.Safari {
		t.Fatalf("expected chrome then safari, got %v", ids)
	}
}

func TestTableCopiesPatterns(t *testing.T) {
	src := []Pattern{{Bytes: []byte("squid"), AppID: appid.Squid, Discipline: Single}}
	table := NewTable(src, true)
	src[0].Bytes[0] = 'x'

	if len(table.Find([]byte("squid/3.1"))) != 1 {
		t.Fatalf("table must own its pattern bytes")
	}
}

func TestCompileSources(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "agents.txt")
	if err := os.WriteFile(file, []byte("# comment\nFooBrowser\n\nBarBrowser\n"), 0o600); err != nil {
		t.Fatalf("write patterns: %v", err)
	}

	patterns, err := CompileSources([]Source{
		{Pattern: "mail.example.com", Payload: "gmail"},
		{PatternsFile: file, Service: "http", Client: "5000"},
	}, Multiple)
	if err != nil {
		t.Fatalf("CompileSources error: %v", err)
	}
	if len(patterns) != 3 {
		t.Fatalf("expected 3 patterns, got %d", len(patterns))
	}
	if patterns[0].AppID != appid.Gmail {
		t.Fatalf("expected payload as primary id, got %v", patterns[0].AppID)
	}
	if string(patterns[2].Bytes) != "BarBrowser" || patterns[2].Client != 5000 || patterns[2].AppID != 5000 {
		t.Fatalf("unexpected file pattern %+v", patterns[2])
	}

	if _, err := CompileSources([]Source{{Pattern: "x", Client: "no_such_app"}}, Single); err == nil {
		t.Fatalf("expected unknown application error")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := Truncate("ab", MaxVersionLen); got != "ab" {
		t.Fatalf("expected unchanged, got %q", got)
	}
}
