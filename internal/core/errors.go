package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tags the category of a backend error.
type ErrorKind string

const (
	// ErrorKindConfiguration indicates a missing credential or model
	// before any call was attempted. Never produced by a network failure.
	ErrorKindConfiguration ErrorKind = "configuration_error"
	// ErrorKindAuthentication indicates a rejected or forbidden credential.
	ErrorKindAuthentication ErrorKind = "authentication_error"
	// ErrorKindNetwork indicates a transport failure or a non-auth HTTP error.
	ErrorKindNetwork ErrorKind = "network_error"
	// ErrorKindFormat indicates a response body that does not match the
	// expected shape.
	ErrorKindFormat ErrorKind = "format_error"
	// ErrorKindUnavailable indicates the host-capability backend is not
	// present in the running environment. Distinct from unauthenticated.
	ErrorKindUnavailable ErrorKind = "unavailable_error"
)

// Authentication failure reasons, used to distinguish a rejected
// credential from a forbidden one.
const (
	ReasonInvalidCredential = "invalid credential"
	ReasonAccessForbidden   = "access forbidden"
)

// Error is the tagged error type for all backend failures. Backend SDK
// error hierarchies are unified behind this single type so callers can
// discriminate by Kind instead of by concrete type.
type Error struct {
	Kind    ErrorKind
	Backend BackendKind
	// Reason is a short human-readable cause, e.g. "invalid credential".
	Reason  string
	Message string
	// Status is the HTTP status code that produced the error, if any.
	Status int
	// Err is the underlying error for debugging; not exposed to clients.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	if e.Backend != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Backend, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap implements the error unwrapping interface.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" if err is not a core.Error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind reports whether err is a core.Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// NewConfigurationError creates an error for a missing credential or model.
func NewConfigurationError(backend BackendKind, message string) *Error {
	return &Error{
		Kind:    ErrorKindConfiguration,
		Backend: backend,
		Message: message,
	}
}

// NewAuthenticationError creates an error for a rejected or forbidden
// credential. The reason distinguishes the two cases.
func NewAuthenticationError(backend BackendKind, reason, message string, status int) *Error {
	return &Error{
		Kind:    ErrorKindAuthentication,
		Backend: backend,
		Reason:  reason,
		Message: message,
		Status:  status,
	}
}

// NewNetworkError creates an error for a transport failure or a non-auth
// HTTP error.
func NewNetworkError(backend BackendKind, message string, err error) *Error {
	return &Error{
		Kind:    ErrorKindNetwork,
		Backend: backend,
		Message: message,
		Err:     err,
	}
}

// NewFormatError creates an error for an unparseable response body.
func NewFormatError(backend BackendKind, message string, err error) *Error {
	return &Error{
		Kind:    ErrorKindFormat,
		Backend: backend,
		Message: message,
		Err:     err,
	}
}

// NewUnavailableError creates an error for an absent host capability.
func NewUnavailableError(backend BackendKind, message string) *Error {
	return &Error{
		Kind:    ErrorKindUnavailable,
		Backend: backend,
		Message: message,
	}
}

// ClassifyHTTPStatus converts a non-200 backend response into the
// appropriate taxonomy error: 401 maps to an invalid credential, 403 to
// access forbidden, and anything else to a generic network error carrying
// the status and body text.
func ClassifyHTTPStatus(backend BackendKind, status int, body []byte) *Error {
	message := extractErrorMessage(body)

	switch status {
	case http.StatusUnauthorized:
		return NewAuthenticationError(backend, ReasonInvalidCredential, message, status)
	case http.StatusForbidden:
		return NewAuthenticationError(backend, ReasonAccessForbidden, message, status)
	default:
		e := NewNetworkError(backend, fmt.Sprintf("unexpected status %d: %s", status, message), nil)
		e.Status = status
		return e
	}
}

// extractErrorMessage pulls the message out of an OpenAI-style error body,
// falling back to the raw body text.
func extractErrorMessage(body []byte) string {
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		return errorResponse.Error.Message
	}
	return string(body)
}
