package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/config"
	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/hosturl"
	"github.com/klyr/appid/internal/session"
)

const (
	appCorp   appid.ID = 6001
	appPortal appid.ID = 7001
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0 Safari/537.36"

func request(target, host string, headers ...string) []byte {
	raw := "GET " + target + " HTTP/1.1\r\nHost: " + host + "\r\n"
	for _, h := range headers {
		raw += h + "\r\n"
	}
	return []byte(raw + "\r\n")
}

func build(t *testing.T, opts Options, setup func(b *Builder)) *Engine {
	t.Helper()
	b := NewBuilder(opts)
	if setup != nil {
		setup(b)
	}
	e, err := b.Finalize()
	require.NoError(t, err)
	return e
}

func TestInspectUserAgent(t *testing.T) {
	e := build(t, Options{}, nil)

	var tx session.Transaction
	ok := e.Inspect(request("/index.html", "www.example.com", "User-Agent: "+chromeUA), &tx)
	require.True(t, ok)
	assert.Equal(t, appid.HTTP, tx.Service)
	assert.Equal(t, appid.Chrome, tx.Client)
	assert.Equal(t, "58.0", tx.Version)
	assert.Equal(t, appid.None, tx.Payload)
}

func TestInspectHostPayload(t *testing.T) {
	e := build(t, Options{}, nil)

	var tx session.Transaction
	require.True(t, e.Inspect(request("/", "mail.google.com"), &tx))
	assert.Equal(t, appid.Gmail, tx.Payload)
	assert.Equal(t, appid.HTTP, tx.Service)
	assert.Equal(t, appid.Gmail, e.PayloadFromHost([]byte("mail.google.com")))
}

func TestInspectURLQueryVersion(t *testing.T) {
	e := build(t, Options{}, func(b *Builder) {
		require.NoError(t, b.AddURL(hosturl.Pattern{Host: "app.example.com", Path: "/download", Query: "ver=", Client: appCorp}))
	})

	var tx session.Transaction
	require.True(t, e.Inspect(request("/download?ver=2.5&x=1", "app.example.com:8080"), &tx))
	assert.Equal(t, appCorp, tx.Client)
	assert.Equal(t, "2.5", tx.Version)
	assert.Equal(t, appid.HTTP, tx.Service)
}

func TestInspectMalformedRequest(t *testing.T) {
	e := build(t, Options{}, nil)

	var tx session.Transaction
	assert.False(t, e.Inspect([]byte("GET / HTTP/1.1\r\nHost: x"), &tx))
	assert.False(t, tx.Identified())
}

func addPortalApp(t *testing.T, b *Builder, actions ...chp.Action) chp.Instance {
	t.Helper()
	inst := chp.MakeInstance(appPortal, 0)
	require.NoError(t, b.AddCHPApp(inst, chp.AppTypePayload, 0))
	for _, a := range actions {
		a.Instance = inst
		require.NoError(t, b.AddCHPAction(a))
	}
	return inst
}

func TestInspectCHPExtractUser(t *testing.T) {
	var inst chp.Instance
	e := build(t, Options{}, func(b *Builder) {
		inst = addPortalApp(t, b,
			chp.Action{Field: fields.Host, Pattern: []byte("corp.example"), Kind: chp.NoAction, Key: true},
			chp.Action{Field: fields.URI, Pattern: []byte("user="), Kind: chp.ExtractUser, Data: "&"},
		)
	})

	var tx session.Transaction
	require.True(t, e.Inspect(request("/login?user=al%69ce&x=1", "portal.corp.example", "User-Agent: curl/7.54.0"), &tx))
	assert.Equal(t, inst, tx.CHPCandidate)
	assert.True(t, tx.CHPFinished)
	assert.Equal(t, "alice", tx.User)
	assert.Equal(t, appPortal, tx.Payload)
	assert.Equal(t, appid.HTTP, tx.Service)
	assert.Equal(t, 2, tx.CHPTotalFound)
	// no_action hides the request from the simple detectors.
	assert.True(t, tx.SkipSimpleDetect)
	assert.Equal(t, appid.None, tx.Client)
}

func TestInspectCHPSafeSearchRewrite(t *testing.T) {
	setup := func(b *Builder) {
		addPortalApp(t, b,
			chp.Action{Field: fields.Host, Pattern: []byte("search.example.com"), Kind: chp.NoAction, Key: true},
			chp.Action{Field: fields.URI, Pattern: []byte("safe=off"), Kind: chp.RewriteField, Data: "safe=on"},
		)
	}
	req := request("/search?q=x&safe=off", "search.example.com")

	on := build(t, Options{SafeSearch: true}, setup)
	var tx session.Transaction
	require.True(t, on.Inspect(req, &tx))
	assert.Equal(t, "/search?q=x&safe=on", string(tx.Rewritten[fields.URI]))
	assert.Contains(t, string(req), "safe=off")

	off := build(t, Options{}, setup)
	tx = session.Transaction{}
	require.True(t, off.Inspect(req, &tx))
	assert.Empty(t, tx.Rewritten)
}

func TestInspectCHPDeferToSimpleDetect(t *testing.T) {
	e := build(t, Options{SafeSearch: true}, func(b *Builder) {
		addPortalApp(t, b,
			chp.Action{Field: fields.Host, Pattern: []byte("defer.example.com"), Kind: chp.NoAction, Key: true},
			chp.Action{Field: fields.URI, Pattern: []byte("/static"), Kind: chp.DeferToSimpleDetect},
		)
	})

	var tx session.Transaction
	require.True(t, e.Inspect(request("/static/app.js", "defer.example.com", "User-Agent: "+chromeUA), &tx))
	assert.True(t, tx.CHPFinished)
	assert.False(t, tx.SkipSimpleDetect)
	assert.Empty(t, tx.Rewritten)
	assert.Equal(t, appid.Chrome, tx.Client)
	assert.Equal(t, appid.None, tx.Payload)
}

func TestInspectCHPAlternateAppID(t *testing.T) {
	e := build(t, Options{}, func(b *Builder) {
		addPortalApp(t, b,
			chp.Action{Field: fields.Host, Pattern: []byte("alt.example.com"), Kind: chp.NoAction, Key: true},
			chp.Action{Field: fields.URI, Pattern: []byte("/inbox"), Kind: chp.AlternateAppID, Data: "gmail"},
		)
	})

	var tx session.Transaction
	require.True(t, e.Inspect(request("/inbox", "alt.example.com"), &tx))
	assert.Equal(t, appid.Gmail, tx.Payload)
}

func TestInspectResponse(t *testing.T) {
	e := build(t, Options{}, nil)

	var tx session.Transaction
	tx.SetService(appid.HTTP)
	resp := []byte("HTTP/1.1 200 OK\r\n" +
		"Content-Type: video/mp4\r\n" +
		"Via: 1.1 squid/3.5.20\r\n" +
		"X-Working-With: ASProxy/2.1\r\n" +
		"Server: Apache/2.4.1 (Unix) OpenSSL/1.0.2\r\n\r\n")

	require.True(t, e.InspectResponse(resp, &tx))
	assert.Equal(t, appid.MP4, tx.Payload)
	assert.Equal(t, appid.Squid, tx.Service)
	assert.Equal(t, "3.5.20", tx.ServiceVersion)
	assert.Equal(t, appid.ASProxy, tx.Client)
	assert.Equal(t, "2.1", tx.Version)
	assert.Equal(t, "Apache", tx.ServerVendor)
	assert.Equal(t, "2.4.1 (Unix)", tx.ServerVersion)
}

func TestServiceFromVia(t *testing.T) {
	e := build(t, Options{}, nil)

	svc, version := e.ServiceFromVia([]byte("1.0 Squid/2.6.STABLE (squid)"))
	assert.Equal(t, appid.Squid, svc)
	assert.Equal(t, "2.6.STABLE (squid", version)

	svc, version = e.ServiceFromVia([]byte("1.1 varnish"))
	assert.Equal(t, appid.None, svc)
	assert.Empty(t, version)
}

func TestServiceFromXWorkingWith(t *testing.T) {
	id, version := ServiceFromXWorkingWith([]byte("ASProxy/2.1 (beta)"))
	assert.Equal(t, appid.ASProxy, id)
	assert.Equal(t, "2.1 (beta", version)

	id, _ = ServiceFromXWorkingWith([]byte("asproxy/2.1"))
	assert.Equal(t, appid.None, id)
}

func TestServerVendorVersion(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  ServerInfo
	}{
		{name: "vendor only", value: "Microsoft-IIS", want: ServerInfo{Vendor: "Microsoft-IIS"}},
		{name: "vendor and version", value: "nginx/1.18.0", want: ServerInfo{Vendor: "nginx", Version: "1.18.0"}},
		{
			name:  "subtypes",
			value: "Apache/2.4.1 (Unix) OpenSSL/1.0.2 mod_perl/2.0",
			want: ServerInfo{Vendor: "Apache", Version: "2.4.1 (Unix)", Subtypes: []Subtype{
				{Service: "OpenSSL", Version: "1.0.2"},
				{Service: "mod_perl", Version: "2.0"},
			}},
		},
		{name: "markup stops scan", value: "Jetty/9.4<br>", want: ServerInfo{Vendor: "Jetty", Version: "9.4"}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ServerVendorVersion([]byte(tt.value)))
		})
	}
}

func TestPayloadFromContentTypeLastMatchWins(t *testing.T) {
	e := build(t, Options{}, nil)
	assert.Equal(t, appid.MP4, e.PayloadFromContentType([]byte("video/mp4")))
	assert.Equal(t, appid.None, e.PayloadFromContentType([]byte("text/html")))
}

func TestBuilderRejectsUseAfterFinalize(t *testing.T) {
	b := NewBuilder(Options{})
	_, err := b.Finalize()
	require.NoError(t, err)

	assert.ErrorIs(t, b.AddURL(hosturl.Pattern{Host: "example.com"}), ErrFinalized)
	_, err = b.RemoveCHPApp(chp.MakeInstance(appPortal, 0))
	assert.ErrorIs(t, err, ErrFinalized)
	_, err = b.Finalize()
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestRemoveCHPApp(t *testing.T) {
	b := NewBuilder(Options{})
	inst := addPortalApp(t, b,
		chp.Action{Field: fields.Host, Pattern: []byte("corp.example"), Kind: chp.NoAction, Key: true},
		chp.Action{Field: fields.URI, Pattern: []byte("user="), Kind: chp.ExtractUser},
	)
	removed, err := b.RemoveCHPApp(inst)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	e, err := b.Finalize()
	require.NoError(t, err)
	assert.Zero(t, e.Stats().CHPActions)
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.txt"), []byte("CorpBrowser\n"), 0o644))
	path := filepath.Join(dir, "appid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`configVersion: 1
detection:
  safeSearch: true
  userAgents:
    - patternsFile: agents.txt
      service: http
      client: "6001"
  urls:
    - host: app.example.com
      path: /download
      query: "ver="
      client: "6001"
  chp:
    - app: "7001"
      appType: [payload]
      actions:
        - field: host
          pattern: portal.example.com
          action: no_action
          key: true
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	e, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.True(t, e.Options().SafeSearch)
	assert.Equal(t, 1, e.Stats().CHPApps)

	var tx session.Transaction
	require.True(t, e.Inspect(request("/", "www.example.com", "User-Agent: Mozilla/5.0 CorpBrowser/3.1"), &tx))
	assert.Equal(t, appCorp, tx.Client)
	assert.Equal(t, "3.1", tx.Version)

	tx = session.Transaction{}
	require.True(t, e.Inspect(request("/", "portal.example.com"), &tx))
	assert.Equal(t, appPortal, tx.Payload)
}

func TestFromConfigRejectsUnknownAction(t *testing.T) {
	cfg := &config.Config{}
	cfg.Detection.CHP = []config.CHPAppSpec{{
		App:     "chrome",
		Actions: []config.CHPActionSpec{{Field: "host", Pattern: "x", Action: "explode"}},
	}}
	_, err := FromConfig(cfg)
	assert.ErrorContains(t, err, "unknown action")
}

func TestHolderSwap(t *testing.T) {
	first := build(t, Options{}, nil)
	second := build(t, Options{SafeSearch: true}, nil)

	h := NewHolder(first)
	assert.Same(t, first, h.Load())
	assert.Same(t, first, h.Swap(second))
	assert.Same(t, second, h.Load())
}

func TestMediaURLFallback(t *testing.T) {
	e := build(t, Options{}, func(b *Builder) {
		require.NoError(t, b.AddURL(hosturl.Pattern{Host: "video.example.com", Path: "/watch", Payload: appPortal}))
		require.NoError(t, b.AddMediaURL(hosturl.Pattern{Host: "stream.example.com", Path: "/live", Payload: appCorp}))
	})

	var tx session.Transaction
	require.True(t, e.Inspect(request("/live/channel1", "stream.example.com"), &tx))
	assert.Equal(t, appCorp, tx.Payload)
	assert.Equal(t, appid.HTTP, tx.Service)

	tx.Reset()
	require.True(t, e.Inspect(request("/watch?v=1", "video.example.com"), &tx))
	assert.Equal(t, appPortal, tx.Payload)

	_, ok := e.ResolveURL("", "http://stream.example.com/live/x", "")
	assert.False(t, ok, "media patterns stay out of the primary tree")
}
