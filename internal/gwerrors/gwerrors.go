// Package gwerrors defines the gateway's error taxonomy and maps each kind
// to the HTTP status and JSON body a handler should emit, so that both the
// OpenAI and Anthropic handlers render failures identically.
package gwerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags which row of the taxonomy table an error belongs to.
type Kind int

const (
	KindNoCredentials Kind = iota
	KindCredentialRefreshFailed
	KindCredentialForbidden
	KindUpstreamStatus
	KindUpstreamInterrupted
	KindInvalidRequest
	KindUnauthorized
	KindRateLimited
	KindEntityTooLarge
	KindToolSchemaInvalid
	KindToolArgsParse
)

// Error is a typed gateway error carrying enough context for a handler to
// render the right HTTP response without re-inspecting the underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	Status     int // upstream HTTP status, when Kind == KindUpstreamStatus
	ResetInSec int // when Kind == KindRateLimited
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NoCredentials, CredentialForbidden, etc. are convenience constructors for
// the taxonomy's fixed-shape members.
func NoCredentials(cause error) *Error {
	return Wrap(KindNoCredentials, "no enabled credentials available", cause)
}

func CredentialForbidden(cause error) *Error {
	return Wrap(KindCredentialForbidden, "credential disabled by upstream", cause)
}

func UpstreamStatus(status int, bodySnippet string) *Error {
	return &Error{Kind: KindUpstreamStatus, Message: bodySnippet, Status: status}
}

func UpstreamInterrupted(cause error) *Error {
	return Wrap(KindUpstreamInterrupted, "upstream connection interrupted", cause)
}

func InvalidRequest(message string) *Error {
	return New(KindInvalidRequest, message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

func RateLimited(resetInSec int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", ResetInSec: resetInSec}
}

func EntityTooLarge(message string) *Error {
	return New(KindEntityTooLarge, message)
}

func ToolSchemaInvalid(message string) *Error {
	return New(KindToolSchemaInvalid, message)
}

func ToolArgsParse(cause error) *Error {
	return Wrap(KindToolArgsParse, "tool call arguments are not valid JSON", cause)
}

// HTTPStatus returns the status code a handler should respond with for err,
// falling back to 500 for anything not in the taxonomy.
func HTTPStatus(err error) int {
	var ge *Error
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError
	}
	switch ge.Kind {
	case KindInvalidRequest, KindToolSchemaInvalid, KindToolArgsParse:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindEntityTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUpstreamStatus:
		if ge.Status != 0 {
			return ge.Status
		}
		return http.StatusBadGateway
	case KindCredentialForbidden, KindUpstreamInterrupted:
		return http.StatusBadGateway
	case KindNoCredentials, KindCredentialRefreshFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Body renders err as the JSON-able error body both handlers share.
func Body(err error) map[string]interface{} {
	var ge *Error
	body := map[string]interface{}{
		"message": err.Error(),
		"type":    "internal_error",
	}
	if !errors.As(err, &ge) {
		return body
	}
	body["message"] = ge.Message
	switch ge.Kind {
	case KindInvalidRequest:
		body["type"] = "invalid_request_error"
	case KindToolSchemaInvalid, KindToolArgsParse:
		body["type"] = "invalid_request_error"
	case KindUnauthorized:
		body["type"] = "authentication_error"
	case KindRateLimited:
		body["type"] = "rate_limit_error"
		body["reset_in_s"] = ge.ResetInSec
	case KindEntityTooLarge:
		body["type"] = "invalid_request_error"
	case KindUpstreamStatus:
		body["type"] = "upstream_error"
		body["status"] = ge.Status
	case KindCredentialForbidden:
		body["type"] = "account_disabled_error"
	case KindUpstreamInterrupted:
		body["type"] = "upstream_interrupted_error"
	case KindNoCredentials, KindCredentialRefreshFailed:
		body["type"] = "internal_error"
	}
	return body
}
