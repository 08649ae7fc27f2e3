package account

import (
	"testing"

	"numrelay-go/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySharedPoolDefault(t *testing.T) {
	r := NewRegistry(testPool(t, 2), 30)
	assert.Equal(t, "shared", r.PoolFor(42).Name())
	assert.False(t, r.UsingPrivate(42))
}

func TestRegistryPrivatePoolSticky(t *testing.T) {
	r := NewRegistry(testPool(t, 2), 30)
	private := []*Account{New(testSID(7), testToken(7))}
	require.NoError(t, r.InstallPrivate(42, private))

	assert.True(t, r.UsingPrivate(42))
	assert.Equal(t, "private:42", r.PoolFor(42).Name())

	// Exhausting the private pool must NOT fall back to shared.
	private[0].Deactivate("dead")
	_, _, err := r.Next(42)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPoolExhausted))
}

func TestRegistryOtherPrincipalsUnaffectedByPrivatePool(t *testing.T) {
	r := NewRegistry(testPool(t, 2), 30)
	require.NoError(t, r.InstallPrivate(42, []*Account{New(testSID(7), testToken(7))}))

	assert.Equal(t, "shared", r.PoolFor(43).Name())
}

func TestRegistryCursorCommitAndAdvance(t *testing.T) {
	r := NewRegistry(testPool(t, 3), 30)

	r.CommitCursor(42, 2)
	assert.Equal(t, 2, r.Cursor(42))

	r.AdvanceCursor(42, 2)
	assert.Equal(t, 0, r.Cursor(42))

	r.AdvanceCursor(42, 0)
	assert.Equal(t, 1, r.Cursor(42))
}

func TestRegistryCursorsIndependentPerPrincipal(t *testing.T) {
	r := NewRegistry(testPool(t, 3), 30)
	r.CommitCursor(1, 2)
	r.CommitCursor(2, 1)

	assert.Equal(t, 2, r.Cursor(1))
	assert.Equal(t, 1, r.Cursor(2))
	assert.Equal(t, 0, r.Cursor(3))
}

func TestRegistryInstallPrivateEnforcesCap(t *testing.T) {
	r := NewRegistry(testPool(t, 1), 2)
	accounts := []*Account{
		New(testSID(0), testToken(0)),
		New(testSID(1), testToken(1)),
		New(testSID(2), testToken(2)),
	}
	err := r.InstallPrivate(42, accounts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity exceeded")
}

func TestRegistryInstallPrivateRejectsEmpty(t *testing.T) {
	r := NewRegistry(testPool(t, 1), 30)
	assert.Error(t, r.InstallPrivate(42, nil))
}

func TestRegistryInstallPrivateResetsCursor(t *testing.T) {
	r := NewRegistry(testPool(t, 3), 30)
	r.CommitCursor(42, 2)

	require.NoError(t, r.InstallPrivate(42, []*Account{New(testSID(7), testToken(7))}))
	assert.Equal(t, 0, r.Cursor(42))
}

func TestRegistryRemovePrivateRevertsToShared(t *testing.T) {
	r := NewRegistry(testPool(t, 2), 30)
	require.NoError(t, r.InstallPrivate(42, []*Account{New(testSID(7), testToken(7))}))

	r.RemovePrivate(42)
	assert.False(t, r.UsingPrivate(42))
	assert.Equal(t, "shared", r.PoolFor(42).Name())
	assert.Equal(t, 0, r.Cursor(42))
}
