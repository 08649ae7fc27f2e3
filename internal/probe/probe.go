// Package probe classifies the liveness of one account against the backend.
// A probe must positively confirm liveness; every ambiguous outcome is a
// failure and flows through the same deactivation path the failover executor
// uses, so account health has a single source of truth.
package probe

import (
	"context"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"
	"numrelay-go/internal/provider"

	log "github.com/sirupsen/logrus"
)

// Status is the classified outcome of one probe.
type Status int

const (
	StatusActive Status = iota
	StatusSuspended
	StatusUnauthenticated
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// StatusFetcher is the narrow provider view the prober needs.
type StatusFetcher interface {
	FetchAccountStatus(ctx context.Context, acct *account.Account) (provider.AccountStatus, error)
}

// Prober performs lightweight authorization checks against the backend.
type Prober struct {
	fetcher StatusFetcher
}

// New builds a Prober over the given provider view. Call timeouts belong to
// the fetcher; the prober only classifies.
func New(fetcher StatusFetcher) *Prober {
	return &Prober{fetcher: fetcher}
}

// Probe issues one authorization call and classifies the result. Any
// outcome other than a positive Active confirmation deactivates the
// account as a side effect.
func (p *Prober) Probe(ctx context.Context, acct *account.Account) Status {
	status, err := p.fetcher.FetchAccountStatus(ctx, acct)

	var result Status
	var reason string
	switch {
	case err != nil && apperrors.IsKind(err, apperrors.KindCredential):
		result = StatusUnauthenticated
		reason = "credential rejected by backend"
	case err != nil:
		// Transport errors, timeouts and malformed payloads all land
		// here; none of them prove liveness.
		result = StatusUnknown
		reason = "probe failed: " + err.Error()
	case status == provider.StatusActive:
		result = StatusActive
	case status == provider.StatusSuspended || status == provider.StatusClosed:
		result = StatusSuspended
		reason = "backend reports account " + string(status)
	default:
		result = StatusUnknown
		reason = "backend reported indecisive status"
	}

	if result != StatusActive {
		acct.Deactivate(reason)
	}

	log.WithFields(log.Fields{
		"account": acct.ID,
		"result":  result.String(),
	}).Debug("account probe")
	return result
}
