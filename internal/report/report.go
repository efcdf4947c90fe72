package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/klyr/appid/internal/logging"
)

type Summary struct {
	Total       int            `json:"total"`
	Identified  int            `json:"identified"`
	Allowed     int            `json:"allowed"`
	Rewritten   int            `json:"rewritten"`
	Shadowed    int            `json:"shadowed"`
	Held        int            `json:"held"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	TopClients  []CountItem    `json:"top_clients"`
	TopPayloads []CountItem    `json:"top_payloads"`
	TopServices []CountItem    `json:"top_services"`
	TopRewrites []CountItem    `json:"top_rewrites"`
	TopServers  []CountItem    `json:"top_servers"`
	Latency     LatencySummary `json:"latency"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Reader struct {
	Since time.Time
}

func (r *Reader) Read(path string) ([]logging.Identification, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []logging.Identification
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec logging.Identification
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, err
		}
		if !r.Since.IsZero() && rec.Timestamp.Before(r.Since) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func Summarize(records []logging.Identification) Summary {
	var summary Summary
	if len(records) == 0 {
		return summary
	}

	summary.Start = records[0].Timestamp
	summary.End = records[0].Timestamp

	clients := map[string]int{}
	payloads := map[string]int{}
	services := map[string]int{}
	rewrites := map[string]int{}
	servers := map[string]int{}
	latencies := make([]int64, 0, len(records))

	for _, rec := range records {
		summary.Total++
		if rec.Timestamp.Before(summary.Start) {
			summary.Start = rec.Timestamp
		}
		if rec.Timestamp.After(summary.End) {
			summary.End = rec.Timestamp
		}

		switch rec.Action {
		case "allow":
			summary.Allowed++
		case "rewrite":
			summary.Rewritten++
		case "shadow":
			summary.Shadowed++
		case "hold":
			summary.Held++
		}

		if rec.Client != "" || rec.Payload != "" {
			summary.Identified++
		}
		if rec.Client != "" {
			key := rec.Client
			if rec.Version != "" {
				key += " " + rec.Version
			}
			clients[key]++
		}
		if rec.Payload != "" {
			payloads[rec.Payload]++
		}
		if rec.Service != "" {
			services[rec.Service]++
		}
		for _, rw := range rec.Rewrites {
			rewrites[rw.Field]++
		}
		if rec.ServerVendor != "" {
			servers[rec.ServerVendor]++
		}

		latencies = append(latencies, rec.DurationMS)
	}

	summary.TopClients = topCounts(clients, 5)
	summary.TopPayloads = topCounts(payloads, 5)
	summary.TopServices = topCounts(services, 5)
	summary.TopRewrites = topCounts(rewrites, 5)
	summary.TopServers = topCounts(servers, 5)
	summary.Latency = latencySummary(latencies)

	return summary
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Key < items[j].Key
		}
		return items[i].Count > items[j].Count
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func latencySummary(values []int64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencySummary{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(float64(len(values)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return float64(values[idx])
}

type section struct {
	title string
	items []CountItem
}

func (s Summary) sections() []section {
	return []section{
		{"Top clients", s.TopClients},
		{"Top payloads", s.TopPayloads},
		{"Top services", s.TopServices},
		{"Top rewritten fields", s.TopRewrites},
		{"Top server vendors", s.TopServers},
	}
}

func (s Summary) totals() table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Total", "Identified", "Allowed", "Rewritten", "Shadowed", "Held", "p50/p95/p99 (ms)"})
	t.AppendRow(table.Row{
		s.Total, s.Identified, s.Allowed, s.Rewritten, s.Shadowed, s.Held,
		fmt.Sprintf("%.0f/%.0f/%.0f", s.Latency.P50, s.Latency.P95, s.Latency.P99),
	})
	return t
}

func countTable(items []CountItem) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Count"})
	for _, item := range items {
		t.AppendRow(table.Row{item.Key, item.Count})
	}
	return t
}

func RenderText(summary Summary) string {
	var b strings.Builder
	totals := summary.totals()
	totals.SetStyle(table.StyleLight)
	b.WriteString(totals.Render())
	b.WriteString("\n")

	for _, sec := range summary.sections() {
		if len(sec.items) == 0 {
			fmt.Fprintf(&b, "\n%s: none\n", sec.title)
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", sec.title)
		t := countTable(sec.items)
		t.SetStyle(table.StyleLight)
		b.WriteString(t.Render())
		b.WriteString("\n")
	}
	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# Identification Report\n\n")
	b.WriteString("## Totals\n\n")
	b.WriteString(summary.totals().RenderMarkdown())
	b.WriteString("\n\n")

	for _, sec := range summary.sections() {
		b.WriteString("## ")
		b.WriteString(sec.title)
		b.WriteString("\n\n")
		if len(sec.items) == 0 {
			b.WriteString("- none\n\n")
			continue
		}
		b.WriteString(countTable(sec.items).RenderMarkdown())
		b.WriteString("\n\n")
	}
	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func WriteOutput(path string, content []byte) error {
	if path == "" {
		_, err := io.Copy(os.Stdout, bytes.NewReader(content))
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
