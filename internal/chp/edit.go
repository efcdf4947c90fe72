package chp

import (
	"bytes"
	"strings"
)

// MaxFieldLen bounds a rewritten field; longer results are truncated.
const MaxFieldLen = 65535

// extract returns the bytes from begin up to the earliest byte found in
// alphabet, else the earliest CR or LF, else the end of buf.
func extract(buf []byte, begin int, alphabet string) string {
	if begin >= len(buf) {
		return ""
	}
	rest := buf[begin:]
	end := -1
	if alphabet != "" {
		end = bytes.IndexAny(rest, alphabet)
	}
	if end < 0 {
		end = bytes.IndexAny(rest, "\r\n")
	}
	if end < 0 {
		end = len(rest)
	}
	return string(rest[:end])
}

// rewrite replaces buf[start:start+size] with data. It returns nil when the
// span already holds data.
func rewrite(buf []byte, start, size int, data string) []byte {
	span := buf[start : start+size]
	if string(span) == data {
		return nil
	}
	return splice(buf, start, start+size, data)
}

// insert places data at pos unless buf already contains it, ignoring case.
func insert(buf []byte, pos int, data string) []byte {
	if data == "" || containsFold(buf, data) {
		return nil
	}
	return splice(buf, pos, pos, data)
}

func splice(buf []byte, from, to int, data string) []byte {
	size := int64(from) + int64(len(data)) + int64(len(buf)-to)
	if size > MaxFieldLen {
		size = MaxFieldLen
	}
	out := make([]byte, 0, size)
	out = append(out, buf[:from]...)
	out = append(out, data...)
	out = append(out, buf[to:]...)
	if len(out) > MaxFieldLen {
		out = out[:MaxFieldLen]
	}
	return out
}

func containsFold(buf []byte, data string) bool {
	return strings.Contains(strings.ToLower(string(buf)), strings.ToLower(data))
}
