package auth

import "context"

// TokenSource records where the request's token was read from.
type TokenSource string

const (
	TokenFromHeader TokenSource = "header"
	TokenFromQuery  TokenSource = "query"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Subject string
	Role    Role
	Source  TokenSource
}

type identityKey struct{}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller identity, if the request was
// authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// RoleFromContext returns the caller role, or "" for anonymous requests.
func RoleFromContext(ctx context.Context) Role {
	identity, _ := IdentityFromContext(ctx)
	return identity.Role
}

// SubjectFromContext returns the token subject, or "".
func SubjectFromContext(ctx context.Context) string {
	identity, _ := IdentityFromContext(ctx)
	return identity.Subject
}
