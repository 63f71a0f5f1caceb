package subsonic

import (
	"errors"
	"fmt"
)

// Client errors
var (
	// ErrRemoteUnavailable means the server could not be reached after
	// all retry attempts.
	ErrRemoteUnavailable = errors.New("music server unavailable")
	// ErrNotFound maps the server's data-not-found error code.
	ErrNotFound = errors.New("requested data not found")
	// ErrAuthFailed maps the server's wrong-credentials error code.
	ErrAuthFailed = errors.New("authentication rejected")
)

// Subsonic protocol error codes.
const (
	codeGeneric      = 0
	codeParameter    = 10
	codeClientOld    = 20
	codeServerOld    = 30
	codeWrongAuth    = 40
	codeTokenSupport = 41
	codeNotAuthz     = 50
	codeTrial        = 60
	codeNotFound     = 70
)

// APIError is a failed response from the server itself, as opposed to a
// transport failure.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// Rejected reports whether the request failed for a reason retrying cannot
// fix (bad credentials, bad parameters, missing data).
func (e *APIError) Rejected() bool {
	switch e.Code {
	case codeParameter, codeWrongAuth, codeTokenSupport, codeNotAuthz, codeNotFound:
		return true
	}
	return false
}

// Unwrap maps well-known codes onto sentinel errors so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case codeWrongAuth, codeTokenSupport, codeNotAuthz:
		return ErrAuthFailed
	case codeNotFound:
		return ErrNotFound
	}
	return nil
}

// transient reports whether an error is worth retrying: transport errors
// and server-side failures, but never protocol rejections.
func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Rejected()
	}
	return err != nil
}
