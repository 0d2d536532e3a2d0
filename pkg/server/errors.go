package server

import (
	"errors"
	"net/http"
)

// ProtocolError is a terminal, machine-readable protocol failure. These are
// never retried: for a given input they are permanent.
type ProtocolError struct {
	Code    string
	Message string
	Status  int
}

func (e *ProtocolError) Error() string {
	return e.Message
}

var (
	// ErrMissingFields rejects an attach without broker, token and checksum.
	ErrMissingFields = &ProtocolError{
		Code:    "invalid_request",
		Message: "broker, token and checksum are required",
		Status:  http.StatusBadRequest,
	}

	// ErrNoReturnChannel rejects an attach with no way to respond.
	ErrNoReturnChannel = &ProtocolError{
		Code:    "invalid_request",
		Message: "no return channel specified",
		Status:  http.StatusBadRequest,
	}

	// ErrInvalidChecksum rejects an attach whose checksum does not match the
	// broker secret.
	ErrInvalidChecksum = &ProtocolError{
		Code:    "invalid_checksum",
		Message: "invalid checksum",
		Status:  http.StatusBadRequest,
	}

	// ErrUnknownBroker rejects operations naming an unregistered broker.
	ErrUnknownBroker = &ProtocolError{
		Code:    "invalid_client_id",
		Message: "unknown broker",
		Status:  http.StatusForbidden,
	}

	// ErrInvalidSessionID rejects a malformed or tampered session id, or one
	// minted under a rotated secret.
	ErrInvalidSessionID = &ProtocolError{
		Code:    "invalid_session_id",
		Message: "checksum failed: client IP address may have changed",
		Status:  http.StatusForbidden,
	}

	// ErrNotAttached rejects login on a session id with no attach record.
	// The client recovers by forgetting its token and re-attaching.
	ErrNotAttached = &ProtocolError{
		Code:    "not_attached",
		Message: "client broker not attached",
		Status:  http.StatusForbidden,
	}

	// ErrUnauthorized gates profile behind an authenticated session.
	ErrUnauthorized = &ProtocolError{
		Code:    "unauthorized",
		Message: "Unauthorized",
		Status:  http.StatusUnauthorized,
	}
)

// ErrAuthenticationFailed reports rejected credentials. Deliberately carries
// no detail about which of broker, session or credentials was wrong.
var ErrAuthenticationFailed = errors.New("authentication failed")

// AsProtocolError unwraps err into a ProtocolError if it is one.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
