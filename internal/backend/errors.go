package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the run is not finished yet or does not exist
	ErrNotFound = errors.New("run not finished or unavailable")

	// ErrServerFault indicates the backend failed with a 5xx response
	ErrServerFault = errors.New("backend server error")

	// ErrNetwork indicates the request never produced an HTTP response
	ErrNetwork = errors.New("backend unreachable")

	// ErrRejected indicates the backend answered with a failure envelope
	ErrRejected = errors.New("backend rejected the request")
)

// StatusError represents a non-2xx response outside the known categories
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// UserMessage converts a backend-call failure into text fit for display
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrNotFound):
		return "Workflow result not found. The run may not have finished yet."
	case errors.Is(err, ErrServerFault):
		return "The workflow service failed to answer. Try again later."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the workflow service."
	case errors.Is(err, ErrRejected):
		return err.Error()
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Request failed with status %d.", statusErr.Code)
	default:
		return "Something went wrong: " + err.Error()
	}
}
