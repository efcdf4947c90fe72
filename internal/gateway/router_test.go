package gateway

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/klyr/appid/internal/config"
)

func TestRouterMatchLongestPrefix(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.Route{
			{Match: config.RouteMatch{PathPrefix: "/api"}, Mode: config.ModeShadow},
			{Match: config.RouteMatch{PathPrefix: "/api/v1"}, Mode: config.ModeEnforce},
		},
	}

	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	req := &http.Request{URL: &url.URL{Path: "/api/v1/users"}, Host: "example.com"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.PathPrefix != "/api/v1" || route.Mode != config.ModeEnforce {
		t.Fatalf("expected enforce /api/v1, got %q %q", route.Mode, route.PathPrefix)
	}
}

func TestRouterMatchHost(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.Route{
			{Match: config.RouteMatch{Host: "Example.com", PathPrefix: "/"}},
			{Match: config.RouteMatch{Host: "", PathPrefix: "/"}},
		},
	}

	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	req := &http.Request{URL: &url.URL{Path: "/"}, Host: "EXAMPLE.com:8443"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.Host != "example.com" {
		t.Fatalf("expected host match example.com, got %q", route.Host)
	}
}

func TestRouterCleansDotSegments(t *testing.T) {
	cfg := &config.Config{
		Routes: []config.Route{
			{Match: config.RouteMatch{PathPrefix: "/static"}, Mode: config.ModeShadow},
			{Match: config.RouteMatch{PathPrefix: "/"}, Mode: config.ModeEnforce},
		},
	}

	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter error: %v", err)
	}

	req := &http.Request{URL: &url.URL{Path: "/static/../admin"}, Host: "example.com"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.PathPrefix != "/" {
		t.Fatalf("expected fallback route, got %q", route.PathPrefix)
	}
}
