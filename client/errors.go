package client

import (
	"fmt"
	"net/http"

	leasekeeper "go-leasekeeper"
)

// UnexpectedStatusError is returned for any non-2xx answer. Body holds the server's message.
type UnexpectedStatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("unexpected status: %s %s -> %d", e.Method, e.Path, e.Code)
}

// Unwrap maps the status back onto the lease errors so callers can use errors.Is.
func (e *UnexpectedStatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return leasekeeper.ErrInvalidRequest
	case http.StatusForbidden:
		return leasekeeper.ErrUnauthorized
	case http.StatusNotFound:
		return leasekeeper.ErrNotFound
	case http.StatusConflict:
		return leasekeeper.ErrConflict
	case http.StatusServiceUnavailable:
		return leasekeeper.ErrUnavailable
	default:
		return nil
	}
}
