// Package account owns the credentialed backend identities and the pools
// they rotate through. All health transitions are lock-guarded single-field
// flips so concurrent discovery of the same failure is an idempotent no-op.
package account

import (
	"strings"
	"sync"
	"time"
)

// Health is the operational state of an account.
type Health int

const (
	HealthActive Health = iota
	HealthInactive
)

func (h Health) String() string {
	if h == HealthActive {
		return "active"
	}
	return "inactive"
}

// Account is one credentialed backend identity. Accounts are never deleted,
// only deactivated; probe results and failover failures share the same
// deactivation path.
type Account struct {
	ID string

	mu            sync.RWMutex
	secret        string
	health        Health
	failureCount  int
	lastFailure   time.Time
	lastSuccess   time.Time
	failureReason string
}

// State captures the mutable runtime fields persisted across restarts.
type State struct {
	Health        string    `json:"health"`
	FailureCount  int       `json:"failure_count,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	LastSuccess   time.Time `json:"last_success,omitempty"`
}

// New creates an Active account from a credential pair.
func New(id, secret string) *Account {
	return &Account{ID: id, secret: secret, health: HealthActive}
}

// Secret returns the raw credential material for provider calls. Never log
// this value; use MaskedSecret for any output.
func (a *Account) Secret() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.secret
}

// MaskedSecret returns a redacted form safe for logs and API responses.
func (a *Account) MaskedSecret() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(a.secret)-4) + a.secret[len(a.secret)-4:]
}

// Status returns the current health.
func (a *Account) Status() Health {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.health
}

// Usable reports whether the account may be selected.
func (a *Account) Usable() bool {
	return a.Status() == HealthActive
}

// Deactivate marks the account Inactive and records the reason. Idempotent:
// a second concurrent deactivation only bumps the counter.
func (a *Account) Deactivate(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.health = HealthInactive
	a.failureCount++
	a.failureReason = reason
	a.lastFailure = time.Now()
}

// Reactivate flips the account back to Active. Used by the administrative
// re-enable path only; probes never promote on ambiguous results.
func (a *Account) Reactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.health = HealthActive
	a.failureReason = ""
}

// MarkSuccess records a successful use.
func (a *Account) MarkSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSuccess = time.Now()
}

// FailureReason returns the most recent deactivation reason.
func (a *Account) FailureReason() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.failureReason
}

// Snapshot captures the mutable state for persistence.
func (a *Account) Snapshot() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{
		Health:        a.health.String(),
		FailureCount:  a.failureCount,
		FailureReason: a.failureReason,
		LastFailure:   a.lastFailure,
		LastSuccess:   a.lastSuccess,
	}
}

// Restore applies persisted state onto the account.
func (a *Account) Restore(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s.Health == HealthInactive.String() {
		a.health = HealthInactive
	} else {
		a.health = HealthActive
	}
	a.failureCount = s.FailureCount
	a.failureReason = s.FailureReason
	a.lastFailure = s.LastFailure
	a.lastSuccess = s.LastSuccess
}

// Clone returns a detached copy for read-only consumers.
func (a *Account) Clone() *Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return &Account{
		ID:            a.ID,
		secret:        a.secret,
		health:        a.health,
		failureCount:  a.failureCount,
		lastFailure:   a.lastFailure,
		lastSuccess:   a.lastSuccess,
		failureReason: a.failureReason,
	}
}
