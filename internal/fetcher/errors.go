package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusTransport is reported when no HTTP response was received.
const StatusTransport = -1

var (
	// ErrRetryBudgetExhausted is wrapped when every rate-limit retry was spent.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrStreamIdle is wrapped when a stream stays silent longer than the idle timeout.
	ErrStreamIdle = errors.New("stream idle timeout")
)

// Error is the typed failure for any call that did not end in a 2xx response.
type Error struct {
	Message string
	URL     string
	Status  int
	// Body is the decoded JSON body, the raw text, or nil for transport failures.
	Body  any
	cause error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the underlying transport or budget error.
func (e *Error) Unwrap() error {
	return e.cause
}

func newStatusError(url string, status int, body any) *Error {
	message := fmt.Sprintf("request failed with status %d", status)
	if text := http.StatusText(status); text != "" {
		message = fmt.Sprintf("request failed with %d %s", status, text)
	}
	return &Error{
		Message: message,
		URL:     url,
		Status:  status,
		Body:    body,
		cause:   nil,
	}
}

func newTransportError(url string, cause error) *Error {
	message := "network request failed"
	if cause != nil {
		message = cause.Error()
	}
	return &Error{
		Message: message,
		URL:     url,
		Status:  StatusTransport,
		Body:    nil,
		cause:   cause,
	}
}

// StatusOf returns the HTTP status carried by err, if err is (or wraps) an *Error.
func StatusOf(err error) (int, bool) {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Status, true
	}
	return 0, false
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	got, ok := StatusOf(err)
	return ok && got == status
}
