package failover

import (
	"context"
	"fmt"
	"testing"

	"numrelay-go/internal/account"
	"numrelay-go/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sid(i int) string   { return fmt.Sprintf("AC%030dxx", i) }
func token(i int) string { return fmt.Sprintf("%030dxx", i) }

func newExec(n int) (*Executor, *account.Pool) {
	accounts := make([]*account.Account, n)
	for i := range accounts {
		accounts[i] = account.New(sid(i), token(i))
	}
	pool := account.NewPool("shared", accounts...)
	return New(account.NewRegistry(pool, 30)), pool
}

func TestDoSuccessOnFirstAccount(t *testing.T) {
	e, _ := newExec(3)
	var used []string

	err := e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		used = append(used, acct.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{sid(0)}, used)
	assert.Equal(t, 0, e.Registry().Cursor(42))
}

func TestDoRotatesOnFailureAndCommitsWinner(t *testing.T) {
	e, pool := newExec(3)
	var used []string

	err := e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		used = append(used, acct.ID)
		if acct.ID == sid(0) {
			return apperrors.Transient("timeout", "backend timeout", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{sid(0), sid(1)}, used)

	// Failed account is deactivated, winner slot committed.
	assert.Equal(t, account.HealthInactive, pool.Get(0).Status())
	assert.Equal(t, 1, e.Registry().Cursor(42))

	// Next call starts directly on the committed winner.
	used = nil
	require.NoError(t, e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		used = append(used, acct.ID)
		return nil
	}))
	assert.Equal(t, []string{sid(1)}, used)
}

func TestDoEachAccountTriedAtMostOnce(t *testing.T) {
	e, _ := newExec(3)
	attempts := make(map[string]int)

	err := e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		attempts[acct.ID]++
		return apperrors.Transient("down", "backend down", nil)
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPoolExhausted))
	for id, n := range attempts {
		assert.Equal(t, 1, n, "account %s tried more than once", id)
	}
	assert.Len(t, attempts, 3)
}

func TestDoCredentialErrorAlsoRotates(t *testing.T) {
	e, pool := newExec(2)
	var used []string

	err := e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		used = append(used, acct.ID)
		if acct.ID == sid(0) {
			return apperrors.Credential("auth", "credential rejected", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{sid(0), sid(1)}, used)
	assert.Equal(t, account.HealthInactive, pool.Get(0).Status())
}

func TestDoHardDenyReturnsWithoutDeactivating(t *testing.T) {
	e, pool := newExec(2)

	err := e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		return apperrors.HardDeny("not_found", "no such resource")
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindHardDeny))

	// The account that carried the denied request stays healthy.
	assert.Equal(t, account.HealthActive, pool.Get(0).Status())
	assert.Equal(t, account.HealthActive, pool.Get(1).Status())
}

func TestDoEmptyPoolExhausted(t *testing.T) {
	e, _ := newExec(0)
	err := e.Do(context.Background(), 42, func(ctx context.Context, acct *account.Account) error {
		t.Fatal("op must not run on an empty pool")
		return nil
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindPoolExhausted))
}

func TestDoValuePropagatesResult(t *testing.T) {
	e, _ := newExec(2)
	v, err := DoValue(context.Background(), e, 42, func(ctx context.Context, acct *account.Account) (string, error) {
		if acct.ID == sid(0) {
			return "", apperrors.Transient("x", "fail", nil)
		}
		return "result-from-" + acct.ID, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "result-from-"+sid(1), v)
}

func TestDoContextCancellationStopsRotation(t *testing.T) {
	e, _ := newExec(3)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := e.Do(ctx, 42, func(ctx context.Context, acct *account.Account) error {
		calls++
		cancel()
		return apperrors.Transient("x", "fail", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
