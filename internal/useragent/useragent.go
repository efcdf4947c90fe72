// Package useragent picks one client application and its version out of the
// signatures that match a User-Agent header.
package useragent

import (
	"bytes"

	"github.com/klyr/appid/internal/appid"
	"github.com/klyr/appid/internal/rules"
)

const compatSuffix = " (Compat)"

var appleMailTokens = [...][]byte{
	[]byte("Mozilla/5.0"),
	[]byte("AppleWebKit"),
	[]byte("(KHTML, like Gecko)"),
}

// Result is the classification of one User-Agent value.
type Result struct {
	Service appid.ID
	Client  appid.ID
	Version string
}

// Classifier is immutable once built and safe for concurrent use.
type Classifier struct {
	table *rules.Table
}

// New compiles the built-in signatures followed by extra.
func New(extra []rules.Pattern) *Classifier {
	patterns := append(rules.UserAgentPatterns(), extra...)
	for i := range patterns {
		patterns[i].Discipline = rules.Multiple
	}
	return &Classifier{table: rules.NewTable(patterns, true)}
}

// Len reports the number of signatures.
func (c *Classifier) Len() int {
	return c.table.Len()
}

type state struct {
	ua      []byte
	res     Result
	version string

	dominant    bool
	mobile      bool
	safari      bool
	firefox     bool
	android     bool
	longestMisc int
}

// Classify returns false when no signature matched. A Skype token anywhere
// in the value wins over every other signature.
func (c *Classifier) Classify(ua []byte) (Result, bool) {
	matches := c.table.Find(ua)
	if len(matches) == 0 {
		return Result{}, false
	}

	skype := false
	for _, m := range matches {
		if m.Pattern.Client == appid.Skype {
			skype = true
			break
		}
	}

	st := &state{ua: ua, res: Result{Service: appid.HTTP}}
	if !st.evaluate(matches) {
		st.resolve()
	}
	if skype {
		st.res.Service = appid.SkypeAuth
		st.res.Client = appid.Skype
	}
	st.res.Version = st.version
	return st.res, true
}

// evaluate walks the matches in position order. It returns true when a
// signature settled the classification on its own.
func (st *state) evaluate(matches []rules.Match) bool {
	for _, m := range matches {
		client := m.Pattern.Client
		end := m.End

		switch client {
		case appid.InternetExplorer, appid.Firefox:
			if st.dominant {
				continue
			}
			v, next, ok := st.tokenVersion(end)
			if !ok {
				continue
			}
			if client == appid.InternetExplorer && bytes.Contains(st.ua[next:], []byte("SLCC2")) &&
				rules.MaxVersionLen-len(v) >= len(compatSuffix) {
				v += compatSuffix
			}
			if client == appid.Firefox {
				st.firefox = true
			}
			st.version = v
			st.set(client)

		case appid.Chrome:
			if st.dominant {
				continue
			}
			v, _, ok := st.tokenVersion(end)
			if !ok {
				continue
			}
			st.dominant = true
			st.version = v
			st.set(client)

		case appid.AndroidBrowser:
			if st.dominant {
				continue
			}
			v, _, ok := st.tokenVersion(end)
			if !ok {
				continue
			}
			st.version = v
			st.android = true

		case appid.Konqueror, appid.Curl, appid.Picasa, appid.WindowsMediaPlayer, appid.BitTorrent:
			if st.dominant && client != appid.WindowsMediaPlayer && client != appid.BitTorrent {
				continue
			}
			v, _, ok := st.tokenVersion(end)
			if !ok {
				continue
			}
			st.version = v
			st.set(client)
			return true

		case appid.GoogleDesktop:
			if end >= len(st.ua) {
				continue
			}
			if st.ua[end] != ')' {
				if !isSep(st.ua[end]) {
					continue
				}
				v := readUntil(st.ua[end+1:], " \t;")
				if v == "" {
					continue
				}
				st.version = v
			}
			st.set(client)
			return true

		case appid.SafariMobileDummy:
			st.mobile = true

		case appid.Safari:
			if !st.dominant {
				st.safari = true
			}

		case appid.AppleEmail:
			if khtml, ok := st.appleMail(); ok {
				st.dominant = !bytes.Contains(st.ua[khtml:], []byte("Safari"))
				st.version = ""
				st.set(client)
			}

		case appid.Wget:
			if end >= len(st.ua) {
				continue
			}
			st.version = rules.Truncate(string(st.ua[end:]), rules.MaxVersionLen)
			st.set(client)
			return true

		case appid.BlackBerryBrowser:
			slash := bytes.IndexByte(st.ua, '/')
			if slash < 0 {
				continue
			}
			v := readUntil(st.ua[slash+1:], " \t;")
			if v == "" {
				continue
			}
			st.version = v
			st.set(client)
			return true

		case appid.Skype, appid.HTTP:

		case appid.Opera:
			st.set(client)

		case appid.Version:
			st.version = ""
			if end < len(st.ua) && st.ua[end] == '/' {
				st.version = readUntil(st.ua[end+1:], " \t;)")
			}

		default:
			if client == appid.None || len(m.Pattern.Bytes) <= st.longestMisc {
				continue
			}
			st.longestMisc = len(m.Pattern.Bytes)
			if end >= len(st.ua) {
				continue
			}
			p := end
			if st.ua[p] == '/' || st.ua[p] == ' ' {
				p++
			}
			if p-1 > 0 && p < len(st.ua) && (st.ua[p-1] == '/' || st.ua[p-1] == ' ') {
				st.version = readUntil(st.ua[p:], " \t;)")
			}
			st.dominant = true
			st.set(client)
		}
	}
	return false
}

func (st *state) resolve() {
	switch {
	case st.dominant:
	case st.mobile && st.safari:
		st.set(appid.SafariMobile)
	case st.safari:
		st.set(appid.Safari)
	case st.firefox:
		st.set(appid.Firefox)
	case st.android:
		st.set(appid.AndroidBrowser)
	}
}

func (st *state) set(client appid.ID) {
	st.res.Service = appid.HTTP
	st.res.Client = client
}

// tokenVersion reads the version following a signature: one space, tab or
// slash, then everything up to a space, tab, semicolon or close paren. It
// returns the offset after the version.
func (st *state) tokenVersion(end int) (string, int, bool) {
	if end >= len(st.ua) || !isSep(st.ua[end]) {
		return "", end, false
	}
	v := readUntil(st.ua[end+1:], " \t;)")
	if v == "" {
		return "", end, false
	}
	return v, end + 1 + len(v), true
}

// appleMail checks the three ordered Apple Mail tokens, the first anchored
// at the start. It returns the offset of the last token.
func (st *state) appleMail() (int, bool) {
	if !bytes.HasPrefix(st.ua, appleMailTokens[0]) {
		return 0, false
	}
	pos := 0
	for _, token := range appleMailTokens[1:] {
		pos = bytes.Index(st.ua, token)
		if pos < 0 {
			return 0, false
		}
	}
	return pos, true
}

func isSep(c byte) bool {
	return c == ' ' || c == '\t' || c == '/'
}

// readUntil copies buf up to the first byte in stops, bounded by
// MaxVersionLen.
func readUntil(buf []byte, stops string) string {
	n := bytes.IndexAny(buf, stops)
	if n < 0 {
		n = len(buf)
	}
	return rules.Truncate(string(buf[:n]), rules.MaxVersionLen)
}
