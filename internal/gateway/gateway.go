package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/engine"
	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/logging"
	"github.com/klyr/appid/internal/observability"
	"github.com/klyr/appid/internal/policy"
	"github.com/klyr/appid/internal/session"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultMaxBodyBytes = 64 << 10
)

// Gateway is an inspecting reverse proxy: every request is identified, its
// planned field rewrites are applied on enforce routes, and the response
// head is identified on the way back.
type Gateway struct {
	router  *Router
	proxies map[string]*httputil.ReverseProxy

	engine   *engine.Holder
	identLog *logging.IdentificationLogger
	metrics  *observability.Metrics
	log      logrus.FieldLogger

	maxHeaderBytes int64
	maxBodyBytes   int64
	timeout        time.Duration
}

type txKey struct{}

func New(cfg *config.Config, holder *engine.Holder, log logrus.FieldLogger) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if holder == nil || holder.Load() == nil {
		return nil, errors.New("engine is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	g := &Gateway{
		router:         router,
		engine:         holder,
		log:            log,
		maxHeaderBytes: cfg.Server.MaxHeaderBytes,
		maxBodyBytes:   defaultMaxBodyBytes,
		timeout:        timeout,
	}

	transport := newTransport(timeout)
	g.proxies = make(map[string]*httputil.ReverseProxy, len(cfg.Upstreams))
	for _, upstream := range cfg.Upstreams {
		target, err := url.Parse(upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream %s: %w", upstream.Name, err)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport
		proxy.ModifyResponse = g.inspectResponse
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.WithError(err).WithField("upstream", target.Host).Warn("upstream request failed")
			switch {
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
			default:
				http.Error(w, "upstream error", http.StatusBadGateway)
			}
		}
		g.proxies[upstream.Name] = proxy
	}

	return g, nil
}

func (g *Gateway) SetIdentificationLogger(logger *logging.IdentificationLogger) {
	g.identLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := g.router.Match(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	proxy, ok := g.proxies[route.Upstream]
	if !ok {
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	host, path := r.Host, r.URL.Path
	if exceedsHeaderLimit(r.Header, g.maxHeaderBytes) {
		http.Error(w, "request headers too large", http.StatusRequestHeaderFieldsTooLarge)
		return
	}

	e := g.engine.Load()
	head := requestHead(r)
	tx := &session.Transaction{}
	e.Inspect(head, tx)

	// A held flow is re-inspected with its body so CHP actions bound to
	// the request body can run.
	if tx.HoldFlow && r.Body != nil && r.Body != http.NoBody {
		body, err := readBody(r, g.maxBodyBytes)
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		tx.Reset()
		e.Inspect(append(head, body...), tx)
	}

	action, apply := policy.DecideAction(route.Mode, tx)
	if apply {
		if err := applyRewrites(r, tx.Rewritten); err != nil {
			g.log.WithError(err).WithField("route", route.ID).Warn("discarding invalid rewrite")
			apply = false
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, txKey{}, tx)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	proxy.ServeHTTP(rec, r.WithContext(ctx))
	upstreamMS := time.Since(start).Milliseconds()

	ident := logging.NewIdentification(tx)
	ident.ClientIP = clientIP(r)
	ident.Host = host
	ident.Method = r.Method
	ident.Path = path
	ident.RouteID = route.ID
	ident.Mode = route.Mode
	ident.Action = string(action)
	ident.StatusCode = rec.status
	ident.UpstreamMS = upstreamMS
	ident.DurationMS = time.Since(start).Milliseconds()
	for i := range ident.Rewrites {
		ident.Rewrites[i].Evidence = redactSecrets(ident.Rewrites[i].Evidence)
	}
	g.writeIdentification(ident, apply)
}

// inspectResponse identifies the upstream response head. The body is left
// untouched for the client.
func (g *Gateway) inspectResponse(resp *http.Response) error {
	tx, ok := resp.Request.Context().Value(txKey{}).(*session.Transaction)
	if !ok {
		return nil
	}
	g.engine.Load().InspectResponse(responseHead(resp), tx)
	return nil
}

func (g *Gateway) writeIdentification(ident logging.Identification, applied bool) {
	if g.identLog != nil {
		if err := g.identLog.Write(ident); err != nil {
			g.log.WithError(err).Error("write identification log")
		}
	}
	g.metrics.Observe(ident, applied)

	if ident.Client != "" || ident.Payload != "" {
		g.log.WithFields(logrus.Fields{
			"route":   ident.RouteID,
			"client":  ident.Client,
			"version": ident.Version,
			"payload": ident.Payload,
			"action":  ident.Action,
		}).Debug("identified")
	}
}

// requestHead renders r as the raw request head the engine scans. Header
// names are canonical and sorted so the layout is stable.
func requestHead(r *http.Request) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/%d.%d\r\n", r.Method, r.URL.RequestURI(), r.ProtoMajor, r.ProtoMinor)
	fmt.Fprintf(&b, "Host: %s\r\n", r.Host)
	writeHeaders(&b, r.Header)
	b.WriteString("\r\n")
	return b.Bytes()
}

func responseHead(resp *http.Response) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/%d.%d %s\r\n", resp.ProtoMajor, resp.ProtoMinor, resp.Status)
	writeHeaders(&b, resp.Header)
	b.WriteString("\r\n")
	return b.Bytes()
}

func writeHeaders(b *bytes.Buffer, headers http.Header) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		canon := http.CanonicalHeaderKey(name)
		for _, value := range headers[name] {
			fmt.Fprintf(b, "%s: %s\r\n", canon, value)
		}
	}
}

// applyRewrites replaces request fields with the values the engine planned.
func applyRewrites(r *http.Request, rewritten map[fields.Type][]byte) error {
	for field, value := range rewritten {
		switch field {
		case fields.URI:
			u, err := url.ParseRequestURI(string(value))
			if err != nil {
				return fmt.Errorf("uri rewrite: %w", err)
			}
			r.URL.Path = u.Path
			r.URL.RawPath = u.RawPath
			r.URL.RawQuery = u.RawQuery
			r.RequestURI = ""
		case fields.Host:
			r.Host = string(value)
		case fields.UserAgent:
			r.Header.Set("User-Agent", string(value))
		case fields.Referer:
			r.Header.Set("Referer", string(value))
		case fields.Cookie:
			r.Header.Set("Cookie", string(value))
		case fields.ReqBody:
			r.Body = io.NopCloser(bytes.NewReader(value))
			r.ContentLength = int64(len(value))
			r.Header.Del("Content-Length")
		}
	}
	return nil
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errors.New("body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	return body, nil
}

var (
	secretKVPattern     = regexp.MustCompile(`(?i)\b(password|passwd|token|api[_-]?key|secret|session|sid)\s*=\s*([^\s&;]+)`)
	secretBearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+\\-/]+=*`)
)

func redactSecrets(input string) string {
	if input == "" {
		return input
	}
	redacted := secretKVPattern.ReplaceAllString(input, `$1=<redacted>`)
	redacted = secretBearerPattern.ReplaceAllString(redacted, "bearer <redacted>")
	return redacted
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func exceedsHeaderLimit(headers http.Header, maxBytes int64) bool {
	if maxBytes <= 0 {
		return false
	}

	var total int64
	for name, values := range headers {
		for _, value := range values {
			total += int64(len(name) + len(value) + 2)
			if total > maxBytes {
				return true
			}
		}
	}

	return total > maxBytes
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
