package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klyr/appid/internal/logging"
)

func TestSummarize(t *testing.T) {
	records := []logging.Identification{
		{Timestamp: time.Unix(0, 0), Action: "allow", DurationMS: 10, Service: "http", Client: "chrome", Version: "58.0"},
		{Timestamp: time.Unix(1, 0), Action: "rewrite", DurationMS: 30, Payload: "7001", Rewrites: []logging.Rewrite{{Field: "uri"}}},
		{Timestamp: time.Unix(2, 0), Action: "shadow", DurationMS: 20, ServerVendor: "nginx"},
	}

	summary := Summarize(records)
	if summary.Total != 3 {
		t.Fatalf("expected total 3, got %d", summary.Total)
	}
	if summary.Allowed != 1 || summary.Rewritten != 1 || summary.Shadowed != 1 {
		t.Fatalf("unexpected action counts")
	}
	if summary.Identified != 2 {
		t.Fatalf("expected 2 identified, got %d", summary.Identified)
	}
	if len(summary.TopClients) != 1 || summary.TopClients[0].Key != "chrome 58.0" {
		t.Fatalf("expected top client chrome 58.0, got %+v", summary.TopClients)
	}
	if len(summary.TopRewrites) != 1 || summary.TopRewrites[0].Key != "uri" {
		t.Fatalf("expected uri rewrite")
	}
	if summary.Latency.P50 != 20 {
		t.Fatalf("expected p50 20, got %v", summary.Latency.P50)
	}
}

func TestReaderSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ident.jsonl")
	content := `{"ts":"2026-01-01T00:00:00Z","action":"allow"}

{"ts":"2026-03-01T00:00:00Z","action":"rewrite"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := &Reader{Since: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	records, err := r.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].Action != "rewrite" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestRenderers(t *testing.T) {
	summary := Summary{Total: 1, Identified: 1, TopClients: []CountItem{{Key: "chrome", Count: 1}}}

	if _, err := RenderJSON(summary); err != nil {
		t.Fatalf("expected json render ok: %v", err)
	}
	text := RenderText(summary)
	if !strings.Contains(text, "chrome") || !strings.Contains(text, "Top payloads: none") {
		t.Fatalf("unexpected text report:\n%s", text)
	}
	md := RenderMarkdown(summary)
	if !strings.HasPrefix(md, "# Identification Report") || !strings.Contains(md, "| chrome |") {
		t.Fatalf("unexpected markdown report:\n%s", md)
	}
}
