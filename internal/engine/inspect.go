package engine

import (
	"bytes"
	"strings"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/chp"
	"github.com/klyr/appid/internal/fields"
	"github.com/klyr/appid/internal/normalize"
	"github.com/klyr/appid/internal/session"
)

var (
	headEnd   = []byte("\r\n\r\n")
	lineEnd   = []byte("\r\n")
	protoMark = []byte(" HTTP/")
)

type fieldBufs [fields.Max + 1][]byte

// Inspect identifies one request. req holds the request head and, when
// present, the body that follows it. Results accumulate in tx; the return
// value reports whether anything was identified.
func (e *Engine) Inspect(req []byte, tx *session.Transaction) bool {
	if !fields.Locate(req, &tx.Offsets) {
		return false
	}

	var bufs fieldBufs
	for f := fields.UserAgent; f <= fields.Cookie; f++ {
		bufs[f] = tx.Offsets.Slice(req, f)
	}
	bufs[fields.URI] = requestTarget(bufs[fields.URI])
	if i := bytes.Index(req, headEnd); i >= 0 && i+len(headEnd) < len(req) {
		bufs[fields.ReqBody] = req[i+len(headEnd):]
	}

	if !tx.CHPFinished {
		e.inspectCHP(&bufs, tx)
	}
	if !tx.SkipSimpleDetect {
		e.detectSimple(&bufs, tx)
	}
	return tx.Identified()
}

// InspectResponse identifies what a response head (and optional body)
// reveals: the content type payload, a proxy in Via, ASProxy, the server
// banner and any CHP actions bound to response fields.
func (e *Engine) InspectResponse(resp []byte, tx *session.Transaction) bool {
	head, body := resp, []byte(nil)
	if i := bytes.Index(resp, headEnd); i >= 0 {
		head, body = resp[:i+len(lineEnd)], resp[i+len(headEnd):]
	}

	var bufs fieldBufs
	bufs[fields.ContentType] = headerValue(head, "Content-Type")
	bufs[fields.Location] = headerValue(head, "Location")
	if len(body) > 0 {
		bufs[fields.Body] = body
	}

	if ct := bufs[fields.ContentType]; len(ct) > 0 {
		tx.SetPayload(e.PayloadFromContentType(ct))
	}
	if via := headerValue(head, "Via"); len(via) > 0 {
		if svc, version := e.ServiceFromVia(via); svc != appid.None {
			if tx.Service == appid.None || tx.Service == appid.HTTP {
				tx.Service = svc
				tx.ServiceVersion = version
			}
		}
	}
	if xww := headerValue(head, "X-Working-With"); len(xww) > 0 {
		if client, version := ServiceFromXWorkingWith(xww); client != appid.None {
			tx.SetClient(client, version)
		}
	}
	if server := headerValue(head, "Server"); len(server) > 0 {
		info := ServerVendorVersion(server)
		tx.ServerVendor = info.Vendor
		tx.ServerVersion = info.Version
	}

	if !tx.CHPFinished && tx.CHPCandidate != 0 {
		if app, ok := e.chp.App(tx.CHPCandidate); ok {
			for f := fields.ContentType; f <= fields.Body; f++ {
				if len(bufs[f]) == 0 {
					continue
				}
				out := e.ScanCHP(f, bufs[f], nil, app.Instance, tx.Version != "", tx.User != "")
				if out.Deferred {
					e.deferCHP(tx)
					break
				}
				tx.Apply(f, out)
			}
			e.maybeConfirm(app, tx)
		}
	}
	return tx.Identified()
}

// inspectCHP runs the key scan over every key field with one shared tally,
// then the winning candidate's actions over every request field.
func (e *Engine) inspectCHP(bufs *fieldBufs, tx *session.Transaction) {
	var tally chp.Tally
	var prior [fields.MaxKey + 1][]chp.Match
	for f := fields.UserAgent; f <= fields.MaxKey; f++ {
		prior[f] = e.ScanKeys(f, bufs[f], &tally)
	}
	app, ok := tally.Candidate()
	if !ok {
		return
	}
	tx.CHPCandidate = app.Instance

	for f := fields.UserAgent; f <= fields.ReqBody; f++ {
		if len(bufs[f]) == 0 {
			continue
		}
		var p []chp.Match
		if f <= fields.MaxKey {
			p = prior[f]
		}
		out := e.ScanCHP(f, bufs[f], p, app.Instance, tx.Version != "", tx.User != "")
		if out.Deferred {
			e.deferCHP(tx)
			return
		}
		tx.Apply(f, out)
	}
	e.maybeConfirm(app, tx)
}

// deferCHP hands the transaction back to the simple detectors and drops any
// planned rewrites.
func (e *Engine) deferCHP(tx *session.Transaction) {
	tx.SkipSimpleDetect = false
	clear(tx.Rewritten)
	tx.CHPFinished = true
}

func (e *Engine) maybeConfirm(app *chp.App, tx *session.Transaction) {
	if !tx.CHPMatched || tx.CHPTotalFound < app.NumMatches {
		return
	}
	tx.CHPFinished = true

	id := app.Instance.AppID()
	if app.AppType&chp.AppTypeService != 0 {
		tx.SetService(id)
	}
	if app.AppType&chp.AppTypeClient != 0 {
		tx.SetClient(id, tx.Version)
	}
	if tx.CHPAltCandidate != appid.None {
		tx.SetPayload(tx.CHPAltCandidate)
	} else if app.AppType&chp.AppTypePayload != 0 {
		tx.SetPayload(id)
	}
	if app.AppType&chp.AppTypeService == 0 {
		tx.SetService(appid.HTTP)
	}
}

// detectSimple runs the user-agent classifier, the URL tree (with the
// referer when referred payloads are enabled) and finally the plain host
// payload table.
func (e *Engine) detectSimple(bufs *fieldBufs, tx *session.Transaction) {
	if ua := bufs[fields.UserAgent]; len(ua) > 0 && tx.Client == appid.None {
		if res, ok := e.ClassifyUserAgent(ua); ok {
			tx.SetService(res.Service)
			tx.SetClient(res.Client, res.Version)
		}
	}

	host := normalize.Host(string(bufs[fields.Host]))
	target := string(bufs[fields.URI])
	url := target
	if !hasScheme(target) {
		if host == "" {
			url = ""
		} else {
			url = "http://" + host + target
		}
	}
	referer := ""
	if e.opts.ReferredPayloads {
		referer = string(bufs[fields.Referer])
	}

	if host != "" || url != "" {
		res, ok := e.ResolveURL(host, url, referer)
		if !ok {
			res, ok = e.ResolveMediaURL(host, url, "")
		}
		if ok {
			tx.SetService(res.Service)
			tx.SetClient(res.Client, res.Version)
			tx.SetPayload(res.Payload)
			if tx.ReferredPayload == appid.None {
				tx.ReferredPayload = res.ReferredPayload
			}
		}
	}

	if tx.Payload == appid.None && host != "" {
		tx.SetPayload(e.PayloadFromHost([]byte(host)))
	}
	if tx.Client != appid.None || tx.Payload != appid.None {
		tx.SetService(appid.HTTP)
	}
}

// requestTarget strips the protocol version from a request line tail.
func requestTarget(uri []byte) []byte {
	if i := bytes.LastIndex(uri, protoMark); i >= 0 {
		return uri[:i]
	}
	return uri
}

func hasScheme(target string) bool {
	window := target
	if len(window) > len("https://") {
		window = window[:len("https://")]
	}
	return strings.Contains(window, "://")
}

// headerValue returns the trimmed value of the first header called name in
// a CRLF separated head. The first line is the start line and is skipped.
func headerValue(head []byte, name string) []byte {
	lines := bytes.Split(head, lineEnd)
	for _, line := range lines[1:] {
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		if !strings.EqualFold(string(bytes.TrimSpace(line[:colon])), name) {
			continue
		}
		return bytes.TrimSpace(line[colon+1:])
	}
	return nil
}
