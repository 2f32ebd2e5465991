package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies engine failures so callers can map them to a transport
// response without inspecting error strings.
type Code string

const (
	// CodeInvalidTransition means the state machine rejected the event for
	// the authorisation's current SCA status.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeResourceUnknown means the consent, payment or authorisation was not
	// found, or the PSU in the request does not match the recorded one.
	CodeResourceUnknown Code = "resource_unknown"

	// CodePsuCredentialsInvalid means PSU authentication data was rejected.
	CodePsuCredentialsInvalid Code = "psu_credentials_invalid"

	// CodeStatusConflict means a write was attempted against a finalised
	// record, or a concurrent update won the version race.
	CodeStatusConflict Code = "status_conflict"

	// CodeCryptoFailure means an identifier or consent payload failed to
	// decrypt or decode. Callers must surface this as a generic not-found.
	CodeCryptoFailure Code = "crypto_failure"

	// CodeAlgorithmUnknown means the crypto provider id embedded in an
	// identifier is no longer registered.
	CodeAlgorithmUnknown Code = "algorithm_unknown"

	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeInternal   Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause so errors.Is and
// errors.As keep working through the service layers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code, or CodeInternal when err is not coded.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
