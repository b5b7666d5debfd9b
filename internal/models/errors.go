package models

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrNotConfigured means no backend base URL is set. Callers treat
	// this as a distinct UI state, not a failure.
	ErrNotConfigured = errors.New("no backend configured")

	// ErrTimeout marks a control-plane request that hit its deadline,
	// distinguishable from other network failures.
	ErrTimeout = errors.New("request timed out")

	// ErrAlreadyExists is returned by mkdir when the collection is
	// already present (405/409 from the backend). Non-fatal when
	// ensuring ancestor directories.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCancelled marks a transfer aborted by the user.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrMoveAccessDenied is a 401 whose body mentions move access.
	ErrMoveAccessDenied = errors.New("move access denied")

	// ErrDestinationRejected is a 422 caused by query parameters
	// contaminating the Destination header.
	ErrDestinationRejected = errors.New("destination rejected")
)

// ValidationError rejects an operation before any network call.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid request: %s", e.Reason)
	}
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}

// UpstreamError is a non-success response from the backend, carrying a
// truncated snippet of the response body.
type UpstreamError struct {
	Action     string
	StatusCode int
	Snippet    string
	Hint       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Hint != "" {
		return e.Hint
	}
	return fmt.Sprintf("%s: HTTP %d (%s)", e.Action, e.StatusCode, e.Snippet)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NetworkError is a transport-level failure (connection refused, DNS,
// broken pipe) as opposed to an HTTP error response.
type NetworkError struct {
	Action string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PartialSuccessError means the upload transport succeeded but the
// post-upload relocation failed: bytes are on the server under the
// flattened name, not at the intended destination.
type PartialSuccessError struct {
	UploadedAs  string
	Destination string
	Err         error
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("uploaded but not placed: %s could not be moved to %s: %v",
		e.UploadedAs, e.Destination, e.Err)
}

func (e *PartialSuccessError) Unwrap() error { return e.Err }
