package restdb

import (
	"errors"
	"fmt"
)

// ErrCreationFailed reports a create call whose response body carried no rows.
var ErrCreationFailed = errors.New("creation returned no rows")

// BackendError is the single error kind for non-2xx backend responses. Message
// is the `message` field of the JSON error body when the backend sent one, or
// the raw body text as fallback.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not a
// BackendError. Callers use it to downgrade specific statuses (case-event 400).
func StatusOf(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}
