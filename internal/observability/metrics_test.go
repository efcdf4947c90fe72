package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klyr/appid/internal/engine"
	"github.com/klyr/appid/internal/logging"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	rec := logging.Identification{
		RouteID:    "route-1",
		Mode:       "enforce",
		Action:     "rewrite",
		StatusCode: 200,
		Service:    "http",
		Client:     "chrome",
		CHPApp:     "gmail#0",
		CHPMatches: 2,
		Rewrites:   []logging.Rewrite{{Field: "uri", Evidence: "/search?safe=on"}},
		DurationMS: 12,
	}
	metrics.Observe(rec, true)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("expected metrics gather to succeed: %v", err)
	}
	if got := value(t, reg, "appid_identifications_total", "client", "chrome"); got != 1 {
		t.Fatalf("identifications = %v", got)
	}
	if got := value(t, reg, "appid_chp_matches_total", "app", "gmail#0"); got != 2 {
		t.Fatalf("chp matches = %v", got)
	}
	if got := value(t, reg, "appid_rewrites_total", "applied", "true"); got != 1 {
		t.Fatalf("rewrites = %v", got)
	}
}

func TestMetricsObserveReload(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.ObserveReload(engine.Stats{UserAgents: 30}, nil)
	metrics.ObserveReload(engine.Stats{}, errors.New("bad pattern"))

	if got := value(t, reg, "appid_signatures", "table", "user_agents"); got != 30 {
		t.Fatalf("user agent signatures = %v", got)
	}
	if got := value(t, reg, "appid_reloads_total", "result", "error"); got != 1 {
		t.Fatalf("failed reloads = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Observe(logging.Identification{}, false)
	m.ObserveReload(engine.Stats{}, nil)
}

// value returns the counter or gauge of the named family whose label
// matches.
func value(t *testing.T, reg *prometheus.Registry, family, label, want string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != family {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() != label || l.GetValue() != want {
					continue
				}
				if c := metric.GetCounter(); c != nil {
					return c.GetValue()
				}
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("no %s{%s=%q}", family, label, want)
	return 0
}
