package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address used for rate-limit keys and request
// logs. The first X-Forwarded-For hop wins, then X-Real-IP, then RemoteAddr.
// Header values that do not parse as an address are ignored.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); validAddr(first) {
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); validAddr(realIP) {
		return strings.TrimSpace(realIP)
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

func validAddr(s string) bool {
	_, err := netip.ParseAddr(strings.TrimSpace(s))
	return err == nil
}
