package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredential is returned when a successful exchange response
// does not contain a credential.
var ErrMissingCredential = errors.New("exchange response has no accessToken")

// APIError describes a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Detail)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
}

// IsStatus reports whether err (or any error in its chain) is an APIError
// with the given HTTP status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsAuthError reports whether err is a 401 or 403 from the backend.
func IsAuthError(err error) bool {
	return IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden)
}
