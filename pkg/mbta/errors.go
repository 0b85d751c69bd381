package mbta

import (
	"errors"
	"fmt"
)

// ErrAuthentication means the API key was rejected. It is fatal - callers
// must stop polling until they are reconfigured with a new key.
var ErrAuthentication = errors.New("mbta: api key rejected")

// ErrRateLimited is returned on HTTP 429. Transient.
var ErrRateLimited = errors.New("mbta: rate limited")

// APIError is any other non-2xx response or transport failure.
type APIError struct {
	Status int
	Detail string
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mbta: request failed: %s", e.Err)
	}
	return fmt.Sprintf("mbta: request failed with status %d: %s", e.Status, e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying on a later cycle.
// Transport errors and server-side statuses are, client-side statuses arent.
func (e *APIError) Temporary() bool {
	if e.Err != nil {
		return true
	}
	return e.Status >= 500
}

type temporary interface {
	Temporary() bool
}

// IsTemporary reports whether err is a transient upstream failure that the
// cache layer may absorb by serving stale data.
func IsTemporary(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrAuthentication) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}
