package domain

import "errors"

var (
	// ErrValidation marks malformed creation input; never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to a request or chat that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRequestClosed marks a response against a non-active request,
	// including requests whose deadline passed before the sweep caught them.
	ErrRequestClosed = errors.New("request closed")
	// ErrDuplicateResponse marks a second response from the same pharmacy to
	// the same request.
	ErrDuplicateResponse = errors.New("already responded")
	// ErrTransient marks storage unavailability; the only retryable kind.
	ErrTransient = errors.New("transient storage error")
)
