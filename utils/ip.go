package utils

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP resolves the visitor address behind the proxies the embedding
// site fronts widget traffic with. X-Forwarded-For lists the original client
// first, then each hop; only the first entry identifies the visitor.
func RealClientIP(r *http.Request) string {
	if xfwd := r.Header.Get("X-Forwarded-For"); xfwd != "" {
		first, _, _ := strings.Cut(xfwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
