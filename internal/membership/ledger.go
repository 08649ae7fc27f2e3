package membership

import (
	"sync"
	"time"
)

// LedgerEntry is the last confirmed membership result for one
// (principal, group) pair. Absence of an entry is equivalent to
// Confirmed=false; entries are never created false.
type LedgerEntry struct {
	Confirmed   bool      `json:"confirmed"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
}

// Stale reports whether the entry falls outside the optional trust window.
// A zero ttl disables staleness entirely.
func (e LedgerEntry) Stale(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.ConfirmedAt) > ttl
}

// Ledger records confirmed memberships for use while the oracle is degraded.
type Ledger interface {
	Get(principal int64, group string) (LedgerEntry, bool)
	// Confirm creates or refreshes the entry to confirmed at the given
	// time. Trust moves monotonically upward through this path.
	Confirm(principal int64, group string, at time.Time)
	// Clear removes trust. Only an authoritative NonMember calls this.
	Clear(principal int64, group string)
	// Entries returns a copy of every entry for the principal.
	Entries(principal int64) map[string]LedgerEntry
}

// MemoryLedger is the in-process ledger. An optional persist hook is invoked
// after every mutation so the owning service can write through to the
// durable store; persistence failures never affect decisions already made.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[int64]map[string]LedgerEntry
	persist func(principal int64, entries map[string]LedgerEntry)
}

// NewMemoryLedger builds an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[int64]map[string]LedgerEntry)}
}

// OnMutate registers the write-through hook.
func (l *MemoryLedger) OnMutate(fn func(principal int64, entries map[string]LedgerEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persist = fn
}

// Load replaces the principal's entries wholesale (startup restore path).
func (l *MemoryLedger) Load(principal int64, entries map[string]LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make(map[string]LedgerEntry, len(entries))
	for g, e := range entries {
		cp[g] = e
	}
	l.entries[principal] = cp
}

func (l *MemoryLedger) Get(principal int64, group string) (LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[principal][group]
	return e, ok
}

func (l *MemoryLedger) Confirm(principal int64, group string, at time.Time) {
	l.mutate(principal, func(m map[string]LedgerEntry) {
		m[group] = LedgerEntry{Confirmed: true, ConfirmedAt: at}
	})
}

func (l *MemoryLedger) Clear(principal int64, group string) {
	l.mutate(principal, func(m map[string]LedgerEntry) {
		delete(m, group)
	})
}

func (l *MemoryLedger) Entries(principal int64) map[string]LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]LedgerEntry, len(l.entries[principal]))
	for g, e := range l.entries[principal] {
		out[g] = e
	}
	return out
}

func (l *MemoryLedger) mutate(principal int64, fn func(map[string]LedgerEntry)) {
	l.mu.Lock()
	m, ok := l.entries[principal]
	if !ok {
		m = make(map[string]LedgerEntry)
		l.entries[principal] = m
	}
	fn(m)
	snapshot := make(map[string]LedgerEntry, len(m))
	for g, e := range m {
		snapshot[g] = e
	}
	persist := l.persist
	l.mu.Unlock()

	if persist != nil {
		persist(principal, snapshot)
	}
}
