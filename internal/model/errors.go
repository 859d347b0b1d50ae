package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an operation on an item or wishlist failed.
type ErrorKind int

// Error kinds. Only KindTransient may be retried.
const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindPolicyRejected
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindPolicyRejected:
		return "policy_rejected"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified domain error. Remaining is set on funding
// rejections that have a meaningful ceiling.
type Error struct {
	Kind      ErrorKind
	Message   string
	Remaining *int64
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports a missing item or wishlist, or a token mismatch.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Forbidden reports an actor that may not perform the operation.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// InvalidState reports an operation that does not fit the item's state.
func InvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

// PolicyRejected reports a funding rejection. remaining may be nil.
func PolicyRejected(msg string, remaining *int64) *Error {
	return &Error{Kind: KindPolicyRejected, Message: msg, Remaining: remaining}
}

// Transient reports a store failure that left no partial writes.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
