package account

import (
	"sync"

	"numrelay-go/internal/apperrors"

	log "github.com/sirupsen/logrus"
)

// Pool is an ordered collection of accounts. Order defines rotation
// priority. The pool itself holds no cursor; cursors are principal-scoped
// and live in the Registry.
type Pool struct {
	name string

	mu       sync.RWMutex
	accounts []*Account
}

// NewPool builds a pool from accounts in priority order. Nil entries are
// dropped.
func NewPool(name string, accounts ...*Account) *Pool {
	p := &Pool{name: name}
	for _, a := range accounts {
		if a != nil {
			p.accounts = append(p.accounts, a)
		}
	}
	return p
}

// Name identifies the pool in logs and errors ("shared" or a principal tag).
func (p *Pool) Name() string { return p.name }

// Len returns the number of slots, active or not.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.accounts)
}

// ActiveCount returns how many accounts are currently usable.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, a := range p.accounts {
		if a.Usable() {
			n++
		}
	}
	return n
}

// Next returns the Active account at cursor, or scans forward circularly
// (skipping Inactive slots) wrapping at most once. The scan never mutates
// any cursor: repeated read-only queries are idempotent. Returns a
// pool-exhausted error when no Active account exists.
func (p *Pool) Next(cursor int) (*Account, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.accounts) == 0 {
		return nil, 0, apperrors.PoolExhausted(p.name)
	}
	if cursor < 0 || cursor >= len(p.accounts) {
		cursor = 0
	}
	for i := 0; i < len(p.accounts); i++ {
		idx := (cursor + i) % len(p.accounts)
		if p.accounts[idx].Usable() {
			return p.accounts[idx], idx, nil
		}
	}
	return nil, 0, apperrors.PoolExhausted(p.name)
}

// Get returns the account at index, or nil when out of range.
func (p *Pool) Get(idx int) *Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if idx < 0 || idx >= len(p.accounts) {
		return nil
	}
	return p.accounts[idx]
}

// FindByID returns the account with the given identifier and its index.
func (p *Pool) FindByID(id string) (*Account, int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, a := range p.accounts {
		if a.ID == id {
			return a, i, true
		}
	}
	return nil, 0, false
}

// Add installs a credential pair. An existing slot with the same identifier
// is replaced in place (and reactivated with the new secret); otherwise the
// account is appended at the lowest priority. Returns the slot index.
func (p *Pool) Add(a *Account) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.accounts {
		if existing.ID == a.ID {
			p.accounts[i] = a
			log.WithFields(log.Fields{"pool": p.name, "slot": i + 1}).Info("replaced pool account")
			return i
		}
	}
	p.accounts = append(p.accounts, a)
	log.WithFields(log.Fields{"pool": p.name, "slot": len(p.accounts)}).Info("added pool account")
	return len(p.accounts) - 1
}

// Accounts returns detached copies of every slot, in priority order.
func (p *Pool) Accounts() []*Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Account, len(p.accounts))
	for i, a := range p.accounts {
		out[i] = a.Clone()
	}
	return out
}

// SnapshotStates captures per-slot runtime state keyed by account ID.
func (p *Pool) SnapshotStates() map[string]State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]State, len(p.accounts))
	for _, a := range p.accounts {
		out[a.ID] = a.Snapshot()
	}
	return out
}

// RestoreStates applies persisted per-slot state by account ID. Unknown IDs
// are ignored.
func (p *Pool) RestoreStates(states map[string]State) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, a := range p.accounts {
		if s, ok := states[a.ID]; ok {
			a.Restore(s)
		}
	}
}
