// Package dberr defines the error taxonomy shared across the query
// pipeline, storage engine, sharding coordinator, and lock manager.
package dberr

import "fmt"

// Kind classifies an error the way callers need to branch on it:
// never deal with string-matching error messages.
type Kind string

const (
	ParseError              Kind = "ParseError"
	ExecutionError          Kind = "ExecutionError"
	OperationNotSupported   Kind = "OperationNotSupported"
	CollectionNotFound      Kind = "CollectionNotFound"
	DocumentNotFound        Kind = "DocumentNotFound"
	CollectionAlreadyExists Kind = "CollectionAlreadyExists"
	InvalidDocument         Kind = "InvalidDocument"
	Conflict                Kind = "Conflict"
	TransactionConflict     Kind = "TransactionConflict"
	MessageTooLarge         Kind = "MessageTooLarge"
	ProtocolError           Kind = "ProtocolError"
	Internal                Kind = "Internal"
)

// Error is the machine-readable/human-readable pair returned to callers.
// Secrets (hash/password arguments) must never be interpolated into Message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to an error of the given kind, the policy used for
// storage I/O and serialization failures.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
