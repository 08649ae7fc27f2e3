// Package failover wraps backend operations with account rotation. The
// retry bound is the pool size, never more: a globally degraded backend
// deactivates the pool once instead of feeding a retry storm.
package failover

import (
	"context"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"

	log "github.com/sirupsen/logrus"
)

// Op is a unit of work parameterized by one account.
type Op func(ctx context.Context, acct *account.Account) error

// Executor rotates a principal's pool through failed operations.
type Executor struct {
	registry *account.Registry
}

// New builds an Executor over the registry.
func New(registry *account.Registry) *Executor {
	return &Executor{registry: registry}
}

// Registry exposes the underlying registry for callers that commit their
// own cursors (session login installs).
func (e *Executor) Registry() *account.Registry { return e.registry }

// Do executes op against the principal's pool. Each account is tried at
// most once; failures deactivate the account and rotate; success commits
// the principal's cursor so the next call starts on the working account.
//
// A hard-deny error returns immediately without touching account health:
// it indicts the request, not the credential that carried it.
func (e *Executor) Do(ctx context.Context, principal int64, op Op) error {
	pool := e.registry.PoolFor(principal)
	attempts := pool.Len()
	tried := make(map[string]struct{}, attempts)

	var lastErr error
	for i := 0; i < attempts; i++ {
		acct, idx, err := e.registry.Next(principal)
		if err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if _, dup := tried[acct.ID]; dup {
			break
		}
		tried[acct.ID] = struct{}{}

		opErr := op(ctx, acct)
		if opErr == nil {
			e.registry.CommitCursor(principal, idx)
			acct.MarkSuccess()
			return nil
		}

		if apperrors.IsKind(opErr, apperrors.KindHardDeny) {
			return opErr
		}

		acct.Deactivate(opErr.Error())
		e.registry.AdvanceCursor(principal, idx)
		lastErr = opErr

		log.WithFields(log.Fields{
			"principal": principal,
			"account":   acct.ID,
			"pool":      pool.Name(),
			"slot":      idx + 1,
			"kind":      apperrors.KindOf(opErr).String(),
		}).Warn("account failed, rotating")

		if err := ctx.Err(); err != nil {
			return lastErr
		}
	}

	exhausted := apperrors.PoolExhausted(pool.Name())
	if lastErr != nil {
		log.WithFields(log.Fields{
			"principal": principal,
			"pool":      pool.Name(),
		}).WithError(lastErr).Error("pool exhausted without a working account")
	}
	return exhausted
}

// DoValue runs an op that produces a result, through the same rotation.
func DoValue[T any](ctx context.Context, e *Executor, principal int64, op func(ctx context.Context, acct *account.Account) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, principal, func(ctx context.Context, acct *account.Account) error {
		v, opErr := op(ctx, acct)
		if opErr != nil {
			return opErr
		}
		out = v
		return nil
	})
	return out, err
}
