// Package membership decides whether a principal retains entitlement to the
// relay's gated operations, including when the authoritative membership
// source is partially or fully unreachable.
package membership

import "context"

// Result is one authoritative answer from the membership source.
type Result int

const (
	// ResultMember confirms the principal belongs to the group.
	ResultMember Result = iota
	// ResultNonMember is explicit non-membership: the principal is not,
	// or was and has left. The only result that downgrades trust.
	ResultNonMember
	// ResultUnreachable means the source could not answer: rate limits,
	// unreadable member lists, transport failures.
	ResultUnreachable
	// ResultNotFound means the principal or the group itself does not
	// exist. Distinct from unreachable and never bridged by cache.
	ResultNotFound
)

func (r Result) String() string {
	switch r {
	case ResultMember:
		return "member"
	case ResultNonMember:
		return "non_member"
	case ResultUnreachable:
		return "unreachable"
	case ResultNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Oracle queries the authoritative membership source. An error return is
// always a transient condition the caller may retry; authoritative answers
// (including NotFound) come back as a Result with a nil error.
type Oracle interface {
	CheckMembership(ctx context.Context, principal int64, group string) (Result, error)
}
