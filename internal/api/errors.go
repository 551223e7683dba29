package api

import (
	"errors"
	"fmt"

	"github.com/nhle/labconsole/internal/model"
)

// AuthError indicates that the backend rejected the session credentials.
// It is returned when a 401 response is received and is never retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an
// AuthError or the absence of a session.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || errors.Is(err, model.ErrNoSession)
}

// HTTPError represents a non-2xx, non-401 response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with
// the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// MalformedPayloadError is returned when a 2xx response body does not
// have the expected shape.
type MalformedPayloadError struct {
	Path   string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload from %s: %s", e.Path, e.Reason)
}

// IsMalformedPayload reports whether err is a MalformedPayloadError.
func IsMalformedPayload(err error) bool {
	var m *MalformedPayloadError
	return errors.As(err, &m)
}
