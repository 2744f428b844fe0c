package utils

import (
	"net/http/httptest"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.7:54211", want: "203.0.113.7"},
		{name: "single proxy", forwarded: "198.51.100.4", remoteAddr: "10.0.0.1:80", want: "198.51.100.4"},
		{name: "proxy chain keeps first hop", forwarded: "198.51.100.4, 10.0.0.2, 10.0.0.3", remoteAddr: "10.0.0.1:80", want: "198.51.100.4"},
		{name: "real ip header", realIP: "198.51.100.9", remoteAddr: "10.0.0.1:80", want: "198.51.100.9"},
		{name: "unparseable remote addr", remoteAddr: "bogus", want: "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := RealClientIP(r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
