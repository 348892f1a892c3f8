package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alert: not found")
	// ErrStoreUnavailable wraps alert store failures.
	ErrStoreUnavailable = errors.New("alert: store unavailable")
)
