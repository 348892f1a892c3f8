package auth

import (
	"errors"
	"net/http"
)

var (
	// ErrMissingToken means the request carried neither a bearer header nor,
	// on GET, an access_token parameter.
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrRoleTooLow means the token is valid but its role ranks below the
	// role the route requires.
	ErrRoleTooLow = errors.New("auth: role below required")
)

// StatusCode maps an authorization failure to the response status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRoleTooLow):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}
