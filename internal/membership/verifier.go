package membership

import (
	"context"
	"time"

	"numrelay-go/internal/retry"

	log "github.com/sirupsen/logrus"
)

// GroupPath names which rule of the decision table admitted or denied one
// group check.
type GroupPath string

const (
	PathLiveMember    GroupPath = "live_member"
	PathLiveNonMember GroupPath = "live_non_member"
	PathCachedTrust   GroupPath = "cached_trust"
	PathSiblingTrust  GroupPath = "sibling_trust"
	PathNoTrust       GroupPath = "no_trust"
	PathNotFound      GroupPath = "not_found"
)

// GroupDecision is the outcome for one (principal, group) check.
type GroupDecision struct {
	Group string    `json:"group"`
	Admit bool      `json:"admit"`
	Path  GroupPath `json:"path"`
}

// Decision is the overall access decision. Ephemeral: recomputed per
// request, never persisted.
type Decision struct {
	Admit bool `json:"admit"`
	// Path distinguishes a normal live admit from degraded-mode admits in
	// observability output; callers branch only on Admit.
	Path   string          `json:"path"`
	Groups []GroupDecision `json:"groups,omitempty"`
}

const (
	DecisionPathAdmin            = "admin"
	DecisionPathLive             = "live"
	DecisionPathDegraded         = "degraded"
	DecisionPathUltimateFallback = "ultimate_fallback"
	DecisionPathDeny             = "deny"
)

// Verifier orchestrates the oracle and the ledger into a single admit/deny
// decision per principal. Stateless between calls; the ledger holds the only
// persistent state.
type Verifier struct {
	oracle   Oracle
	ledger   Ledger
	groups   []string
	policy   retry.Policy
	admin    int64
	trustTTL time.Duration
	now      func() time.Time
}

// VerifierOptions configure a Verifier.
type VerifierOptions struct {
	Oracle         Oracle
	Ledger         Ledger
	RequiredGroups []string
	Policy         retry.Policy
	AdminPrincipal int64
	// TrustTTL bounds how old a ledger confirmation may be before the
	// degraded-mode rules ignore it. Zero disables the window.
	TrustTTL time.Duration
	Now      func() time.Time
}

// NewVerifier builds a Verifier.
func NewVerifier(opts VerifierOptions) *Verifier {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		oracle:   opts.Oracle,
		ledger:   opts.Ledger,
		groups:   opts.RequiredGroups,
		policy:   opts.Policy,
		admin:    opts.AdminPrincipal,
		trustTTL: opts.TrustTTL,
		now:      now,
	}
}

// RequiredGroups returns the configured group set.
func (v *Verifier) RequiredGroups() []string {
	out := make([]string, len(v.groups))
	copy(out, v.groups)
	return out
}

// Verify produces the admit/deny decision for a principal. The public
// contract never returns "unreachable": every oracle failure is resolved
// through the fallback policy before this returns.
func (v *Verifier) Verify(ctx context.Context, principal int64) Decision {
	if v.admin != 0 && principal == v.admin {
		return Decision{Admit: true, Path: DecisionPathAdmin}
	}

	now := v.now()

	// Phase 1: query the oracle for every group, with bounded retries per
	// group. Results feed the sibling-trust rule, so a live confirmation
	// obtained for one group moments earlier helps an unreachable sibling.
	results := make(map[string]Result, len(v.groups))
	for _, group := range v.groups {
		results[group] = v.checkGroup(ctx, principal, group)
	}

	// Phase 2: classify each group against the ledger and the pass's own
	// live results.
	decision := Decision{Admit: true, Path: DecisionPathLive}
	allUnreachable := true
	anyDegraded := false

	for _, group := range v.groups {
		res := results[group]
		if res != ResultUnreachable {
			allUnreachable = false
		}

		entry, hasEntry := v.ledger.Get(principal, group)
		in := checkInput{
			Result:         res,
			HasEntry:       hasEntry,
			Entry:          entry,
			Stale:          hasEntry && entry.Stale(v.trustTTL, now),
			SiblingTrusted: v.liveSibling(results, group),
		}
		out := classify(in)

		switch {
		case out.Refresh:
			v.ledger.Confirm(principal, group, now)
		case out.Promote:
			// Promotion by association: a principal demonstrably
			// reachable for a sibling group is assumed governed by
			// the same membership source.
			v.ledger.Confirm(principal, group, now)
		case out.Clear:
			v.ledger.Clear(principal, group)
		}

		if out.Path == PathCachedTrust || out.Path == PathSiblingTrust {
			anyDegraded = true
		}
		decision.Groups = append(decision.Groups, GroupDecision{Group: group, Admit: out.Admit, Path: out.Path})
		if !out.Admit {
			decision.Admit = false
		}
	}

	switch {
	case !decision.Admit:
		decision.Path = DecisionPathDeny
	case allUnreachable && len(v.groups) > 0:
		// Every admit came from cached trust under a total outage. The
		// most likely path to mask a real revocation, so it must stand
		// out in the logs.
		decision.Path = DecisionPathUltimateFallback
		log.WithFields(log.Fields{
			"principal": principal,
			"groups":    len(v.groups),
		}).Warn("membership source fully unreachable, admitting on prior full verification")
	case anyDegraded:
		decision.Path = DecisionPathDegraded
	}

	return decision
}

// checkGroup resolves one group lookup to an authoritative Result, retrying
// transient failures within the policy before classifying the group as
// unreachable.
func (v *Verifier) checkGroup(ctx context.Context, principal int64, group string) Result {
	result := ResultUnreachable
	err := v.policy.Do(ctx, "membership_check", func(ctx context.Context) error {
		res, cerr := v.oracle.CheckMembership(ctx, principal, group)
		if cerr != nil {
			return cerr
		}
		result = res
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"principal": principal,
			"group":     group,
		}).Debug("membership lookup unresolved, treating as unreachable")
		return ResultUnreachable
	}
	return result
}

// liveSibling reports whether any other required group produced a live
// Member result in this pass. Ledger records of sibling groups deliberately
// do not count: under a total outage the ultimate-fallback rule alone
// decides, and it requires every group previously confirmed.
func (v *Verifier) liveSibling(results map[string]Result, group string) bool {
	for g, res := range results {
		if g != group && res == ResultMember {
			return true
		}
	}
	return false
}

type checkInput struct {
	Result         Result
	HasEntry       bool
	Entry          LedgerEntry
	Stale          bool
	SiblingTrusted bool
}

type checkOutcome struct {
	Admit   bool
	Path    GroupPath
	Refresh bool
	Promote bool
	Clear   bool
}

// classify is the decision table for one (principal, group) check. Pure:
// ledger effects are returned, not applied.
func classify(in checkInput) checkOutcome {
	switch in.Result {
	case ResultMember:
		return checkOutcome{Admit: true, Path: PathLiveMember, Refresh: true}
	case ResultNonMember:
		return checkOutcome{Admit: false, Path: PathLiveNonMember, Clear: true}
	case ResultNotFound:
		// The group relationship itself cannot be re-derived from
		// cache; cached trust never overrides.
		return checkOutcome{Admit: false, Path: PathNotFound}
	default: // ResultUnreachable
		if in.HasEntry && in.Entry.Confirmed && !in.Stale {
			return checkOutcome{Admit: true, Path: PathCachedTrust}
		}
		if in.SiblingTrusted {
			return checkOutcome{Admit: true, Path: PathSiblingTrust, Promote: true}
		}
		return checkOutcome{Admit: false, Path: PathNoTrust}
	}
}
