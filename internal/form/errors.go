package form

import (
	"errors"

	"github.com/example/lowpoly/internal/client"
)

// ErrSubmissionInFlight is returned by Submit while an earlier submission is
// still waiting for its response.
var ErrSubmissionInFlight = errors.New("form: submission already in flight")

// ValidationError is a client-side failure detected before any request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// failureMessage renders err for ErrorMessage, preferring the server detail.
func failureMessage(err error) string {
	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return FailurePrefix + transportErr.Message()
	}
	return FailurePrefix + err.Error()
}
