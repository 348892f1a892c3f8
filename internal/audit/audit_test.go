package audit

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"watertap/internal/auth"
)

func TestFromRequestTakesIdentityAndClient(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/alerts", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 172.16.0.1")
	req.Header.Set("User-Agent", "ops-console")
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "ana", Role: auth.RoleAdmin, Source: auth.TokenFromHeader}))

	entry := FromRequest(req, "alert.create", ResourceAlert, "12", map[string]int{"sensor_id": 3})
	if entry.Actor != "ana" || entry.Role != string(auth.RoleAdmin) {
		t.Fatalf("unexpected identity %+v", entry)
	}
	if entry.IP != "10.0.0.7" || entry.UserAgent != "ops-console" {
		t.Fatalf("unexpected client details %+v", entry)
	}
	if string(entry.Metadata) != `{"sensor_id":3}` {
		t.Fatalf("unexpected metadata %s", entry.Metadata)
	}
}

func TestClientIPFallbacks(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.5:51234"
	if got := ClientIP(req); got != "192.168.1.5" {
		t.Fatalf("expected remote host, got %s", got)
	}
	req.Header.Set("X-Real-IP", " 10.1.1.1 ")
	if got := ClientIP(req); got != "10.1.1.1" {
		t.Fatalf("expected real ip header, got %s", got)
	}
	req.Header.Set("X-Forwarded-For", "unknown, ::ffff:10.0.0.9")
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected first valid forwarded hop, got %s", got)
	}
	req.Header.Set("X-Forwarded-For", "garbage")
	req.Header.Set("X-Real-IP", "also-garbage")
	if got := ClientIP(req); got != "192.168.1.5" {
		t.Fatalf("expected remote host when headers are invalid, got %s", got)
	}
	if ClientIP(nil) != "" {
		t.Fatalf("expected empty ip for nil request")
	}
}

func TestDigestAndIDs(t *testing.T) {
	if DigestJSON(nil) != "" {
		t.Fatalf("expected empty digest")
	}
	if len(DigestJSON([]byte(`{}`))) != 64 {
		t.Fatalf("expected sha256 hex digest")
	}
	if !strings.HasPrefix(NewID(), "audit-") {
		t.Fatalf("unexpected id prefix")
	}
	if err := NewZapLogger(nil).Log(context.Background(), Entry{Action: "x"}); err != nil {
		t.Fatalf("zap logger: %v", err)
	}
}
