package audit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address recorded on audit entries: the first
// parseable X-Forwarded-For hop, then X-Real-IP, then the RemoteAddr host.
// Header values that are not IP addresses are ignored.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if addr, ok := parseAddr(hop); ok {
			return addr
		}
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseAddr(value string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
