package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPExtract(t *testing.T) {
	c := NewClientIP()
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct public peer ignores headers", "203.0.113.7:4000", "1.2.3.4", "", "203.0.113.7"},
		{"trusted proxy uses first forwarded", "10.0.0.2:4000", "198.51.100.1, 10.0.0.3", "", "198.51.100.1"},
		{"trusted proxy falls back to real ip", "127.0.0.1:4000", "garbage", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy without headers", "192.168.1.5:4000", "", "", "192.168.1.5"},
		{"unparseable remote addr", "unix", "", "", "unix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := c.Extract(r); got != tt.want {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	c := NewClientIP()
	if err := c.AddTrustedProxy("nope"); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
	if err := c.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("add: %v", err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:80"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := c.Extract(r); got != "198.51.100.1" {
		t.Fatalf("got %q", got)
	}
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS over TLS")
	}
}
