package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const request = "GET /index.html?q=1 HTTP/1.1\r\n" +
	"Host: www.example.com\r\n" +
	"user-agent: Mozilla/5.0 (X11)\r\n" +
	"Referer: http://ref.example.com/a\r\n" +
	"Cookie: a=b\r\n" +
	"Host: second.example.com\r\n" +
	"\r\n"

func TestLocateFindsFieldSpans(t *testing.T) {
	var offsets Offsets
	require.True(t, Locate([]byte(request), &offsets))

	buf := []byte(request)
	assert.Equal(t, "/index.html?q=1 HTTP/1.1", string(offsets.Slice(buf, URI)))
	assert.Equal(t, "www.example.com", string(offsets.Slice(buf, Host)))
	assert.Equal(t, "Mozilla/5.0 (X11)", string(offsets.Slice(buf, UserAgent)))
	assert.Equal(t, "http://ref.example.com/a", string(offsets.Slice(buf, Referer)))
	assert.Equal(t, "a=b", string(offsets.Slice(buf, Cookie)))

	span, ok := offsets.Get(Host)
	require.True(t, ok)
	assert.Equal(t, len("www.example.com"), span.Len())
}

func TestLocateInsufficientData(t *testing.T) {
	offsets := Offsets{Host: {Start: 1, End: 4}}

	assert.False(t, Locate([]byte("GET /\r\n"), &offsets))
	_, ok := offsets.Get(Host)
	assert.False(t, ok, "stale spans must be cleared")

	assert.False(t, Locate([]byte("GET / HTTP/1.1\r\nHost: a\r\n"), &offsets))
	assert.True(t, Locate([]byte("GET /\r\n\r\n"), &offsets))
}

func TestParseAndNames(t *testing.T) {
	ft, ok := Parse("User-Agent")
	require.True(t, ok)
	assert.Equal(t, UserAgent, ft)

	ft, ok = Parse("content_type")
	require.True(t, ok)
	assert.Equal(t, ContentType, ft)
	assert.False(t, ft.IsKey())
	assert.True(t, URI.IsKey())

	_, ok = Parse("nope")
	assert.False(t, ok)
	assert.Len(t, Names(), int(Max))
	assert.Equal(t, "body", Body.String())
}
