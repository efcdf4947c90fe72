package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klyr/appid/internal/engine"
	"github.com/klyr/appid/internal/logging"
)

type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	identificationTotal *prometheus.CounterVec
	chpMatchesTotal     *prometheus.CounterVec
	rewritesTotal       *prometheus.CounterVec
	reloadsTotal        *prometheus.CounterVec
	signatures          *prometheus.GaugeVec
	inspectDuration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "appid_requests_total", Help: "Total inspected requests"},
			[]string{"route", "mode", "action", "code"},
		),
		identificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "appid_identifications_total", Help: "Total identified transactions"},
			[]string{"service", "client", "payload"},
		),
		chpMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "appid_chp_matches_total", Help: "Total CHP action matches counted toward confirmation"},
			[]string{"app"},
		),
		rewritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "appid_rewrites_total", Help: "Total planned field rewrites"},
			[]string{"route", "field", "applied"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "appid_reloads_total", Help: "Total engine reloads"},
			[]string{"result"},
		),
		signatures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "appid_signatures", Help: "Compiled signatures per table"},
			[]string{"table"},
		),
		inspectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appid_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.identificationTotal,
		m.chpMatchesTotal,
		m.rewritesTotal,
		m.reloadsTotal,
		m.signatures,
		m.inspectDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observe records one logged transaction. applied reports whether the
// planned rewrites were forwarded upstream.
func (m *Metrics) Observe(rec logging.Identification, applied bool) {
	if m == nil {
		return
	}

	route := rec.RouteID
	m.requestsTotal.WithLabelValues(route, rec.Mode, rec.Action, intToString(rec.StatusCode)).Inc()
	m.inspectDuration.WithLabelValues(route).Observe((time.Duration(rec.DurationMS) * time.Millisecond).Seconds())

	if rec.Service != "" || rec.Client != "" || rec.Payload != "" {
		m.identificationTotal.WithLabelValues(orNone(rec.Service), orNone(rec.Client), orNone(rec.Payload)).Inc()
	}
	if rec.CHPApp != "" && rec.CHPMatches > 0 {
		m.chpMatchesTotal.WithLabelValues(rec.CHPApp).Add(float64(rec.CHPMatches))
	}
	for _, rw := range rec.Rewrites {
		m.rewritesTotal.WithLabelValues(route, rw.Field, strconv.FormatBool(applied)).Inc()
	}
}

// ObserveReload records an engine rebuild and, on success, its table sizes.
func (m *Metrics) ObserveReload(stats engine.Stats, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.reloadsTotal.WithLabelValues("ok").Inc()

	for table, n := range map[string]int{
		"content_types": stats.ContentTypes,
		"host_payloads": stats.HostPayloads,
		"via":           stats.Via,
		"user_agents":   stats.UserAgents,
		"urls":          stats.URLs,
		"media_urls":    stats.MediaURLs,
		"chp_apps":      stats.CHPApps,
		"chp_actions":   stats.CHPActions,
	} {
		m.signatures.WithLabelValues(table).Set(float64(n))
	}
}

func orNone(name string) string {
	if name == "" {
		return "none"
	}
	return name
}

func intToString(code int) string {
	if code == 0 {
		return "0"
	}
	return strconv.Itoa(code)
}
