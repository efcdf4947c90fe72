package hosturl

import (
	"strings"

	"github.com/klyr/appid/internal/appid"
)

const (
	schemeEnd = "://"
	// schemeWindow is len("https://"); the scheme terminator must end
	// inside it.
	schemeWindow = 8
)

// Result is the outcome of resolving a request URL and its referer.
type Result struct {
	Client          appid.ID
	Service         appid.ID
	Payload         appid.ID
	ReferredPayload appid.ID
	Version         string
	Entry           *Entry
}

// Resolve identifies url (and referer, when given) against the tree. host
// overrides the URL authority when set. A URL or referer without a scheme
// is a miss. The referer is consulted when the URL matched nothing or its
// payload carries appid.FlagReferred; a referer hit becomes the payload and
// demotes the URL's payload to ReferredPayload.
func (m *Matcher) Resolve(host, url, referer string, reg appid.Registry) (Result, bool) {
	var res Result
	if host == "" && url == "" {
		return res, false
	}

	var path string
	if url != "" {
		rest, ok := stripScheme(url)
		if !ok {
			return Result{}, false
		}
		authority, tail := splitAuthority(rest)
		if host == "" {
			host = authority
		}
		path = tail
	}

	found := false
	if e, ok := m.Match(host, path); ok {
		found = true
		res.Entry = e
		res.Client = e.Client
		res.Service = e.Service
		res.Payload = e.Payload
		if i := strings.IndexByte(path, '?'); i >= 0 && e.Query != "" {
			res.Version = MatchQuery(path[i+1:], e.Query)
		}
	}

	if referer == "" || (found && !referred(reg, res.Payload)) {
		return res, found
	}

	rest, ok := stripScheme(referer)
	if !ok {
		return Result{}, false
	}
	refHost, refPath := splitAuthority(rest)
	if refPath == "" {
		refPath = "/"
	}
	if refHost == "" {
		return res, found
	}
	if e, ok := m.Match(refHost, refPath); ok {
		if found {
			res.ReferredPayload = res.Payload
		}
		found = true
		res.Payload = e.Payload
	}
	return res, found
}

func referred(reg appid.Registry, payload appid.ID) bool {
	return reg != nil && reg.Flags(payload)&appid.FlagReferred != 0
}

func stripScheme(url string) (string, bool) {
	window := url
	if len(window) > schemeWindow {
		window = window[:schemeWindow]
	}
	i := strings.Index(window, schemeEnd)
	if i < 0 {
		return "", false
	}
	return url[i+len(schemeEnd):], true
}

func splitAuthority(rest string) (authority, path string) {
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i:]
	}
	return rest, ""
}
