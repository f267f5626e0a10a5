package kour

import (
	"errors"
	"net/http"
)

// Registration and binding errors.
var (
	ErrInvalidMethod     = errors.New("kour: unsupported HTTP method")
	ErrInvalidHandler    = errors.New("kour: invalid handler")
	ErrRouterSealed      = errors.New("kour: router is sealed, routes cannot be added while serving")
	ErrInvalidValue      = errors.New("kour: invalid value")
	ErrMalformedBody     = errors.New("kour: malformed body")
	ErrUnboundParameter  = errors.New("kour: unbound handler parameter")
	ErrUnsupportedResult = errors.New("kour: unsupported handler result")
)

// HTTPError is an application error carrying the status and message to send.
// Handlers return it (possibly wrapped) to answer with a specific status.
type HTTPError struct {
	// Err is the underlying cause, logged but never sent to the client.
	Err error

	// Message is the user-facing message used as the response body.
	Message string

	// Code is the HTTP status code.
	Code int
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int {
	return e.Code
}

// NewHTTPError creates an HTTPError. An empty message defaults to the status phrase.
func NewHTTPError(code int, message string) *HTTPError {
	if message == "" {
		message = StatusPhrase(code)
	}
	return &HTTPError{Code: code, Message: message}
}

// WithCause attaches an underlying error for logging.
func (e *HTTPError) WithCause(err error) *HTTPError {
	e.Err = err
	return e
}

// Convenience constructors for common HTTP errors.

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message)
}

func ErrForbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message)
}

func ErrNotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message)
}

func ErrConflict(message string) *HTTPError {
	return NewHTTPError(http.StatusConflict, message)
}

func ErrUnprocessable(message string) *HTTPError {
	return NewHTTPError(http.StatusUnprocessableEntity, message)
}

// AsHTTPError extracts an HTTPError from err's chain. Returns nil if none.
func AsHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return nil
}

// StatusPhrase returns the reason phrase for a status code.
func StatusPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}
