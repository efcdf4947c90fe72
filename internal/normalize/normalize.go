package normalize

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// PercentDecode decodes %XX escapes. Incomplete or non-hex escapes are kept
// as they are, unlike url.PathUnescape which rejects the whole input.
func PercentDecode(input string) string {
	if strings.IndexByte(input, '%') < 0 {
		return input
	}

	out := make([]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		c := input[i]
		if c == '%' && i+2 < len(input) && isHex(input[i+1]) && isHex(input[i+2]) {
			out = append(out, unhex(input[i+1])<<4|unhex(input[i+2]))
			i += 2
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// Host lowercases a Host header value, strips the port and converts
// internationalized names to their ASCII form. Values idna rejects are
// returned lowercased as they are.
func Host(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || isASCII(host) {
		return host
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}

// SplitURL separates a request target into path and query.
func SplitURL(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
