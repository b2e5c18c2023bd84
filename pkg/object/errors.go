package object

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeSelfOwnership indicates an object was asked to own itself.
	ErrCodeSelfOwnership ErrorCode = "SELF_OWNERSHIP"

	// ErrCodeAlreadyOwned indicates an owner already owns the (kind, name) pair.
	ErrCodeAlreadyOwned ErrorCode = "ALREADY_OWNED"

	// ErrCodeUnknownKind indicates no store is registered for a kind.
	ErrCodeUnknownKind ErrorCode = "UNKNOWN_KIND"

	// ErrCodeNotFound indicates a missing manifest or live object.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTypeMismatch indicates a boxed manifest or store was recovered
	// as the wrong concrete type. This is always an internal consistency bug.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeClosed indicates a closed store, subscription, or command channel.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeAlreadyStarted indicates registration after the engine started.
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"

	// ErrCodeInvalidManifest indicates a manifest that cannot be stored.
	ErrCodeInvalidManifest ErrorCode = "INVALID_MANIFEST"
)

// Error is the typed error returned by the engine's primitives.
// Controller-raised errors are never converted to Error; they are wrapped.
type Error struct {
	Code    ErrorCode
	Message string

	// Kind and Name identify the affected object when known.
	Kind Kind
	Name string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Kind != "" && e.Name != "":
		msg = fmt.Sprintf("%s (%s/%s)", msg, e.Kind, e.Name)
	case e.Kind != "":
		msg = fmt.Sprintf("%s (%s)", msg, e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err, or any error it wraps, is an *Error with code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsTypeMismatch reports whether err is a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool { return HasCode(err, ErrCodeTypeMismatch) }

// IsUnknownKind reports whether err is an UNKNOWN_KIND error.
func IsUnknownKind(err error) bool { return HasCode(err, ErrCodeUnknownKind) }

// IsClosed reports whether err is a CLOSED error.
func IsClosed(err error) bool { return HasCode(err, ErrCodeClosed) }

// IsOwnershipError reports whether err is a SELF_OWNERSHIP or ALREADY_OWNED error.
func IsOwnershipError(err error) bool {
	return HasCode(err, ErrCodeSelfOwnership) || HasCode(err, ErrCodeAlreadyOwned)
}

// NotFound builds a NOT_FOUND error for kind/name.
func NotFound(kind Kind, name, message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message, Kind: kind, Name: name}
}

// UnknownKind builds an UNKNOWN_KIND error.
func UnknownKind(kind Kind) *Error {
	return &Error{
		Code:    ErrCodeUnknownKind,
		Message: fmt.Sprintf("no store registered for kind %q", kind),
		Kind:    kind,
	}
}
