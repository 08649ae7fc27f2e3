package account

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Registry binds principals to pools and owns the principal-scoped rotation
// cursors. Pool selection is sticky: a principal with a private pool never
// falls back to the shared pool, even when the private pool is exhausted.
type Registry struct {
	shared    *Pool
	bulkLimit int

	mu      sync.RWMutex
	cursors map[int64]int
	private map[int64]*Pool
}

// NewRegistry wraps the shared pool. bulkLimit caps principal-supplied
// private pools.
func NewRegistry(shared *Pool, bulkLimit int) *Registry {
	if bulkLimit <= 0 {
		bulkLimit = 30
	}
	return &Registry{
		shared:    shared,
		bulkLimit: bulkLimit,
		cursors:   make(map[int64]int),
		private:   make(map[int64]*Pool),
	}
}

// Shared exposes the process-wide pool for administrative operations.
func (r *Registry) Shared() *Pool { return r.shared }

// BulkLimit returns the private pool capacity bound.
func (r *Registry) BulkLimit() int { return r.bulkLimit }

// PoolFor resolves the pool serving a principal.
func (r *Registry) PoolFor(principal int64) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.private[principal]; ok {
		return p
	}
	return r.shared
}

// UsingPrivate reports whether the principal has a private pool installed.
func (r *Registry) UsingPrivate(principal int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.private[principal]
	return ok
}

// Cursor returns the principal's last-known-good slot index.
func (r *Registry) Cursor(principal int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursors[principal]
}

// CommitCursor records a successful use of the given slot so repeated
// operations by the same principal prefer the same account.
func (r *Registry) CommitCursor(principal int64, idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[principal] = idx
}

// AdvanceCursor moves the principal's cursor past a failed slot.
func (r *Registry) AdvanceCursor(principal int64, failedIdx int) {
	pool := r.PoolFor(principal)
	n := pool.Len()
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.cursors[principal] = (failedIdx + 1) % n
	} else {
		r.cursors[principal] = 0
	}
}

// Next resolves the principal's pool and returns its next usable account
// without mutating the cursor.
func (r *Registry) Next(principal int64) (*Account, int, error) {
	return r.PoolFor(principal).Next(r.Cursor(principal))
}

// InstallPrivate replaces the principal's private pool with the given
// accounts and resets its cursor. The capacity bound is enforced here, not
// at parse time, so callers get a single authoritative check.
func (r *Registry) InstallPrivate(principal int64, accounts []*Account) error {
	if len(accounts) == 0 {
		return fmt.Errorf("private pool requires at least one account")
	}
	if len(accounts) > r.bulkLimit {
		return fmt.Errorf("private pool capacity exceeded: %d accounts (limit %d)", len(accounts), r.bulkLimit)
	}
	pool := NewPool(fmt.Sprintf("private:%d", principal), accounts...)

	r.mu.Lock()
	r.private[principal] = pool
	r.cursors[principal] = 0
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"principal": principal,
		"accounts":  len(accounts),
	}).Info("installed private account pool")
	return nil
}

// RemovePrivate drops the principal's private pool and cursor; the principal
// reverts to the shared pool on next use.
func (r *Registry) RemovePrivate(principal int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.private, principal)
	delete(r.cursors, principal)
}

// PrivatePools returns a snapshot of installed private pools keyed by
// principal, for persistence.
func (r *Registry) PrivatePools() map[int64]*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]*Pool, len(r.private))
	for id, p := range r.private {
		out[id] = p
	}
	return out
}
