package reconcile

import "errors"

var (
	// ErrNotAuthenticated means there is no session; the credential is kept
	// pending instead of being saved.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrValidationIncomplete means the username or the password is missing.
	ErrValidationIncomplete = errors.New("username or password missing")
	// ErrBackendUnavailable wraps transport and decoding failures of the
	// storage backend.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

// statusCoder is implemented by backend errors that carry an HTTP status.
type statusCoder interface {
	error
	StatusCode() int
}

func isBackendResponse(err error) bool {
	var sc statusCoder
	return errors.As(err, &sc)
}
