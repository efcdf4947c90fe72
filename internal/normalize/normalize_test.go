package normalize

import "testing"

func TestPercentDecode(t *testing.T) {
	cases := map[string]string{
		"john%20doe":  "john doe",
		"abc%2":       "abc%2",
		"abc%":        "abc%",
		"%zz%41":      "%zzA",
		"plain":       "plain",
		"a%2Fb%2fc":   "a/b/c",
		"%252e":       "%2e",
		"trail%20%2":  "trail %2",
		"":            "",
		"100%":        "100%",
		"%e2%82%ac":   "€",
		"user%40corp": "user@corp",
	}

	for input, expected := range cases {
		if got := PercentDecode(input); got != expected {
			t.Fatalf("PercentDecode(%q) expected %q, got %q", input, expected, got)
		}
	}
}

func TestHost(t *testing.T) {
	cases := map[string]string{
		"Example.COM:8080":  "example.com",
		"mail.google.com.":  "mail.google.com",
		"[::1]:443":         "::1",
		"bücher.de":         "xn--bcher-kva.de",
		"  spaced.example ": "spaced.example",
		"":                  "",
	}

	for input, expected := range cases {
		if got := Host(input); got != expected {
			t.Fatalf("Host(%q) expected %q, got %q", input, expected, got)
		}
	}
}

func TestSplitURL(t *testing.T) {
	path, query := SplitURL("/a/b?ver=3.2.1&x=1")
	if path != "/a/b" || query != "ver=3.2.1&x=1" {
		t.Fatalf("unexpected split %q %q", path, query)
	}

	path, query = SplitURL("/plain")
	if path != "/plain" || query != "" {
		t.Fatalf("unexpected split %q %q", path, query)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/a//b/./c":  "/a/b/c",
		"/a/b/../c":  "/a/c",
		"../a/../b":  "b",
		"/../a":      "/a",
		"/a/b/":      "/a/b/",
		"":           "/",
		"/":          "/",
		"/a/../../b": "/b",
	}

	for input, expected := range cases {
		got := NormalizePath(input)
		if got != expected {
			t.Fatalf("NormalizePath(%q) expected %q, got %q", input, expected, got)
		}
	}
}
