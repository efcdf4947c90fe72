// Package fields locates HTTP request header fields inside a raw request
// buffer and names the field types the CHP engine scans.
package fields

import (
	"bytes"
	"strings"

	"github.com/klyr/appid/internal/rules"
)

// Type names an HTTP field. The key-pattern fields are UserAgent through URI.
type Type uint8

const (
	None Type = iota
	UserAgent
	Host
	Referer
	URI
	Cookie
	ReqBody
	ContentType
	Location
	Body
)

const (
	MaxKey = URI
	Max    = Body
)

var names = [...]string{
	None:        "",
	UserAgent:   "user_agent",
	Host:        "host",
	Referer:     "referer",
	URI:         "uri",
	Cookie:      "cookie",
	ReqBody:     "req_body",
	ContentType: "content_type",
	Location:    "location",
	Body:        "body",
}

func (t Type) String() string {
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// IsKey reports whether key patterns may be registered on the field.
func (t Type) IsKey() bool {
	return t >= UserAgent && t <= MaxKey
}

// Parse resolves a field name such as "user_agent" or "User-Agent".
func Parse(name string) (Type, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	for t := UserAgent; t <= Max; t++ {
		if names[t] == name {
			return t, true
		}
	}
	return None, false
}

// Names lists every field name in type order.
func Names() []string {
	return append([]string(nil), names[UserAgent:]...)
}

// Span is a [Start, End) byte range; End is one past the last byte.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Offsets holds the located span of each request field. A zero span means
// the field was not found.
type Offsets [Max + 1]Span

// Get returns the span of t and whether it was found.
func (o *Offsets) Get(t Type) (Span, bool) {
	if t > Max {
		return Span{}, false
	}
	s := o[t]
	return s, s.End > s.Start
}

// Slice returns the bytes of field t in buf, or nil.
func (o *Offsets) Slice(buf []byte, t Type) []byte {
	s, ok := o.Get(t)
	if !ok || s.End > len(buf) {
		return nil
	}
	return buf[s.Start:s.End]
}

// MinRequestLen is the size of the smallest request the scanner accepts.
const MinRequestLen = len("GET /\r\n\r\n")

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

var prefixes = rules.Compile([]rules.Entry[Type]{
	{Pattern: []byte(" "), Value: URI},
	{Pattern: []byte("\r\nHost: "), Value: Host},
	{Pattern: []byte("\r\nReferer: "), Value: Referer},
	{Pattern: []byte("\r\nCookie: "), Value: Cookie},
	{Pattern: []byte("\r\nUser-Agent: "), Value: UserAgent},
}, true)

// Locate fills offsets with the spans of the URI, Host, Referer, Cookie and
// User-Agent fields of the request head in buf. It returns false, leaving
// every span cleared, when buf is too short or has no header terminator.
func Locate(buf []byte, offsets *Offsets) bool {
	for t := UserAgent; t <= Cookie; t++ {
		offsets[t] = Span{}
	}
	if len(buf) < MinRequestLen {
		return false
	}
	end := bytes.Index(buf, crlfcrlf)
	if end < 0 {
		return false
	}
	head := buf[:end+len(crlfcrlf)]

	prefixes.Scan(head, func(t Type, start int) bool {
		if offsets[t].End > offsets[t].Start {
			return true
		}
		stop := bytes.Index(head[start:], crlf)
		if stop < 0 {
			return true
		}
		offsets[t] = Span{Start: start, End: start + stop}
		return true
	})
	return true
}
