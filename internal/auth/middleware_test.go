package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler(t *testing.T, wantSubject string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantSubject != "" && SubjectFromContext(r.Context()) != wantSubject {
			t.Errorf("expected subject %q in context, got %q", wantSubject, SubjectFromContext(r.Context()))
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil), nil)
	handler := mw.Wrap(okHandler(t, ""))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_RoleMatrix(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil), nil)
	handler := mw.Wrap(okHandler(t, "user-1"))

	cases := []struct {
		role   string
		method string
		path   string
		want   int
	}{
		{"viewer", http.MethodGet, "/api/v1/sensors/history", http.StatusOK},
		{"viewer", http.MethodPost, "/api/v1/sensors/upload", http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/sensors/upload", http.StatusOK},
		{"operator", http.MethodDelete, "/api/v1/sensors/data", http.StatusForbidden},
		{"admin", http.MethodDelete, "/api/v1/sensors/data", http.StatusOK},
		{"viewer", http.MethodPost, "/api/v1/alerts/4/deactivate", http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/alerts/4/deactivate", http.StatusOK},
		{"operator", http.MethodDelete, "/api/v1/alerts/4", http.StatusForbidden},
		{"operator", http.MethodPost, "/api/v1/alerts", http.StatusForbidden},
		{"admin", http.MethodPost, "/api/v1/alerts", http.StatusOK},
		{"viewer", http.MethodGet, "/api/v1/ai/settings", http.StatusOK},
		{"operator", http.MethodPost, "/api/v1/ai/disable", http.StatusForbidden},
		{"viewer", http.MethodGet, "/api/v1/reports/xlsx", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, tc.role))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s as %s: expected %d, got %d", tc.method, tc.path, tc.role, tc.want, resp.Code)
		}
	}
}

func TestAuthMiddleware_QueryTokenOnGetOnly(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil), nil)
	handler := mw.Wrap(okHandler(t, ""))
	token := mustToken(t, secret, "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stream?access_token="+token, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/alerts/1/activate?access_token="+token, nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for query token on POST, got %d", resp.Code)
	}
}

func TestAuthMiddleware_IdentityCarriesTokenSource(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil), nil)
	token := mustToken(t, secret, "operator")

	var got Identity
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors/stream?access_token="+token, nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got.Subject != "user-1" || got.Role != RoleOperator || got.Source != TokenFromQuery {
		t.Fatalf("unexpected query identity %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sensors/upload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got.Source != TokenFromHeader {
		t.Fatalf("expected header source, got %+v", got)
	}
}

func TestStatusCodeMapsAuthErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrMissingToken, http.StatusUnauthorized},
		{fmt.Errorf("%w: token expired", ErrInvalidToken), http.StatusUnauthorized},
		{ErrRoleTooLow, http.StatusForbidden},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestAuthMiddleware_ExemptPath(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil), nil)
	handler := mw.Wrap(okHandler(t, ""))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestParseJWTRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	if _, err := ParseJWT(mustToken(t, []byte("other"), "admin"), secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
	if _, err := ParseJWT(mustToken(t, secret, "root"), secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for unknown role, got %v", err)
	}
	if _, err := ParseJWT("", secret); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token for empty token, got %v", err)
	}
}

func TestIssueJWTRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "ops", RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func mustToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
