package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind int

const (
	// KindTransient covers network failures, timeouts and rate limits.
	// Retried within the configured bounds.
	KindTransient Kind = iota
	// KindCredential covers malformed or rejected credentials. The owning
	// account is deactivated permanently and the call is not retried on it.
	KindCredential
	// KindPoolExhausted means no usable account remains. Surfaced to the
	// caller, never retried automatically.
	KindPoolExhausted
	// KindMembershipUnreachable is internal to the access verifier and is
	// always resolved through the fallback policy before returning.
	KindMembershipUnreachable
	// KindHardDeny is an authoritative non-membership or not-found result.
	// Surfaced as a definitive deny, not retried.
	KindHardDeny
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCredential:
		return "credential"
	case KindPoolExhausted:
		return "pool_exhausted"
	case KindMembershipUnreachable:
		return "membership_unreachable"
	case KindHardDeny:
		return "hard_deny"
	default:
		return "unknown"
	}
}

// Error is the shared error shape carried across the relay core.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	RateLimit  bool
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error without a wrapped cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// Transient builds a retryable backend error.
func Transient(code, message string, cause error) *Error {
	return Wrap(KindTransient, code, message, cause)
}

// Credential builds a permanent credential rejection.
func Credential(code, message string, cause error) *Error {
	return Wrap(KindCredential, code, message, cause)
}

// PoolExhausted reports that no usable account remains in the given pool.
func PoolExhausted(pool string) *Error {
	return New(KindPoolExhausted, "pool_exhausted", fmt.Sprintf("no working account available in %s pool", pool))
}

// MembershipUnreachable reports a transient oracle failure for one group.
func MembershipUnreachable(group string, cause error) *Error {
	return Wrap(KindMembershipUnreachable, "membership_unreachable", fmt.Sprintf("membership source unreachable for %s", group), cause)
}

// HardDeny reports authoritative non-membership or a missing principal/group.
func HardDeny(code, message string) *Error {
	return New(KindHardDeny, code, message)
}

// KindOf extracts the Kind from err, defaulting to KindTransient for
// unclassified errors. Ambiguity is treated conservatively: an unknown
// failure is something worth retrying, not a verdict.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether the retry policy may attempt err again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient || e.Kind == KindMembershipUnreachable
	}
	// Unclassified errors are retried; proving permanence is the
	// classifier's job, not the caller's.
	return true
}

// IsRateLimited reports whether err was caused by upstream rate limiting.
// Rate limits pause the retry loop instead of consuming an attempt slot
// at full speed.
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.RateLimit
	}
	return false
}
