package authapi

import (
	"net/http/httptest"
	"slices"
	"testing"
)

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://App.Example.com:8443": "app.example.com",
		"http://localhost":             "localhost",
		"127.0.0.1:3000":               "127.0.0.1",
		"example.org":                  "example.org",
		"":                             "",
		"http://":                      "",
	}
	for in, want := range cases {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://localhost:5173", "https://localhost", "https://b.test", " "})
	want := []string{"b.test", "b.test:*", "localhost", "localhost:*"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.WSAllowedOrigins = []string{"https://app.example.com"}

	cases := []struct {
		name     string
		origin   string
		required bool
		ok       bool
	}{
		{"absent optional", "", false, true},
		{"absent required", "", true, false},
		{"exact", "https://app.example.com", false, true},
		{"other port same host", "https://app.example.com:8443", false, true},
		{"foreign", "https://evil.test", false, false},
	}
	for _, tc := range cases {
		c := cfg
		c.WSOriginRequired = tc.required
		h := &Handler{cfg: c}

		r := httptest.NewRequest("GET", "/auth/events", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		err := h.enforceOrigin(r)
		if tc.ok != (err == nil) {
			t.Fatalf("%s: ok=%v err=%v", tc.name, tc.ok, err)
		}
	}
}
