package engine

import (
	"bytes"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/hosturl"
	"github.com/klyr/appid/internal/rules"
	"github.com/klyr/appid/internal/useragent"
)

var asProxyPrefix = []byte("ASProxy/")

// PayloadFromContentType returns the payload of the last signature found in
// a Content-Type value.
func (e *Engine) PayloadFromContentType(value []byte) appid.ID {
	matches := e.contentTypes.Find(value)
	if len(matches) == 0 {
		return appid.None
	}
	return matches[len(matches)-1].Pattern.AppID
}

// PayloadFromHost looks the host up in the plain host payload table.
func (e *Engine) PayloadFromHost(host []byte) appid.ID {
	matches := e.hostPayloads.Find(host)
	if len(matches) == 0 {
		return appid.None
	}
	return matches[0].Pattern.Payload
}

// ServiceFromVia identifies a Squid proxy named in a Via header. The version
// follows a slash and runs to a close paren or a non-printable byte.
func (e *Engine) ServiceFromVia(value []byte) (appid.ID, string) {
	matches := e.via.Find(value)
	if len(matches) == 0 {
		return appid.None, ""
	}
	m := matches[0]
	if m.Pattern.Service != appid.Squid {
		return appid.None, ""
	}
	version := ""
	if m.End < len(value) && value[m.End] == '/' {
		version = printableUntilParen(value[m.End+1:])
	}
	return appid.Squid, version
}

// ServiceFromXWorkingWith recognizes the ASProxy client announced in an
// X-Working-With header.
func ServiceFromXWorkingWith(value []byte) (appid.ID, string) {
	if !bytes.HasPrefix(value, asProxyPrefix) {
		return appid.None, ""
	}
	return appid.ASProxy, printableUntilParen(value[len(asProxyPrefix):])
}

// ClassifyUserAgent runs the client classifier over a User-Agent value.
func (e *Engine) ClassifyUserAgent(ua []byte) (useragent.Result, bool) {
	return e.agents.Classify(ua)
}

// ResolveURL identifies a request by host, URL and referer against the URL
// tree.
func (e *Engine) ResolveURL(host, url, referer string) (hosturl.Result, bool) {
	return e.urls.Resolve(host, url, referer, e.opts.Registry)
}

// ResolveMediaURL does the same against the media stream tree.
func (e *Engine) ResolveMediaURL(host, url, referer string) (hosturl.Result, bool) {
	return e.media.Resolve(host, url, referer, e.opts.Registry)
}

// ScanKeys finds the CHP patterns of one key field, counting key hits in
// tally.
func (e *Engine) ScanKeys(field fields.Type, buf []byte, tally *chp.Tally) []chp.Match {
	return e.chp.ScanKeys(field, buf, tally)
}

// ScanCHP runs the candidate's actions on one field.
func (e *Engine) ScanCHP(field fields.Type, buf []byte, prior []chp.Match, candidate chp.Instance, haveVersion, haveUser bool) chp.Outcome {
	return e.chp.Scan(field, buf, prior, candidate, haveVersion, haveUser, e.chpOptions())
}

func (e *Engine) chpOptions() chp.Options {
	return chp.Options{SafeSearch: e.opts.SafeSearch, UserIDDisabled: e.opts.UserIDDisabled}
}

func printableUntilParen(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != ')' && isPrint(buf[n]) {
		n++
	}
	return rules.Truncate(string(buf[:n]), rules.MaxVersionLen)
}

func isPrint(c byte) bool {
	return c >= 0x20 && c < 0x7f
}
