package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenQueryParam carries the token for clients that cannot set headers,
// such as EventSource and browser WebSockets. It is honored on GET only.
const TokenQueryParam = "access_token"

// Middleware validates JWTs and enforces RBAC.
type Middleware struct {
	Secret []byte
	Policy Policy
	Logger *zap.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{Secret: secret, Policy: policy, Logger: logger}
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.authorize(r, required)
		if err != nil {
			status := StatusCode(err)
			if status == http.StatusForbidden {
				m.Logger.Info("request forbidden",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("subject", identity.Subject),
					zap.String("role", string(identity.Role)),
					zap.String("required", string(required)),
				)
			} else {
				m.Logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// authorize resolves the caller and checks it against required. The identity
// is returned alongside ErrRoleTooLow for logging.
func (m *Middleware) authorize(r *http.Request, required Role) (Identity, error) {
	token, source := extractToken(r)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	claims, err := ParseJWT(token, m.Secret)
	if err != nil {
		return Identity{}, err
	}
	role, _ := NormalizeRole(claims.Role)
	identity := Identity{Subject: claims.Subject, Role: role, Source: source}
	if !RoleAtLeast(role, required) {
		return identity, ErrRoleTooLow
	}
	return identity, nil
}

func extractToken(r *http.Request) (string, TokenSource) {
	if token := extractBearer(r); token != "" {
		return token, TokenFromHeader
	}
	if r != nil && r.Method == http.MethodGet {
		return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)), TokenFromQuery
	}
	return "", ""
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
