package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"numrelay-go/internal/account"
	"numrelay-go/internal/membership"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(principal int64) *PrincipalRecord {
	return &PrincipalRecord{
		Principal: principal,
		Status:    StatusActive,
		Verified: map[string]membership.LedgerEntry{
			"@a": {Confirmed: true, ConfirmedAt: time.Now().UTC().Truncate(time.Second)},
		},
		Accounts: []StoredAccount{{
			SID:   "AC00000000000000000000000000000000",
			Token: "00000000000000000000000000000000",
			State: account.State{Health: "active"},
		}},
		Cursor:   1,
		FirstUse: time.Now().UTC().Truncate(time.Second),
	}
}

func openFileBackend(t *testing.T, dir string) *FileBackend {
	t.Helper()
	b := NewFileBackend(dir)
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	require.NoError(t, b.SavePrincipal(ctx, testRecord(42)))
	require.NoError(t, b.Close())

	reopened := openFileBackend(t, dir)
	records, err := reopened.LoadPrincipals(ctx)
	require.NoError(t, err)
	require.Contains(t, records, int64(42))

	rec := records[42]
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, 1, rec.Cursor)
	require.Len(t, rec.Accounts, 1)
	assert.Equal(t, "AC00000000000000000000000000000000", rec.Accounts[0].SID)
	assert.True(t, rec.Verified["@a"].Confirmed)
}

func TestFileBackendDelete(t *testing.T) {
	ctx := context.Background()
	b := openFileBackend(t, t.TempDir())

	require.NoError(t, b.SavePrincipal(ctx, testRecord(42)))
	require.NoError(t, b.DeletePrincipal(ctx, 42))
	require.NoError(t, b.DeletePrincipal(ctx, 42), "deleting a missing principal is not an error")

	records, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileBackendRecoversFromCorruptPrimary(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b := openFileBackend(t, dir)
	require.NoError(t, b.SavePrincipal(ctx, testRecord(1)))
	// Second save rotates the first good primary to the backup.
	require.NoError(t, b.SavePrincipal(ctx, testRecord(2)))

	primary := filepath.Join(dir, principalsFile)
	require.NoError(t, os.WriteFile(primary, []byte("{corrupt"), 0o644))

	recovered := openFileBackend(t, dir)
	records, err := recovered.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.Contains(t, records, int64(1), "backup held the state before the last save")

	// The corrupt primary is preserved for inspection.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var quarantined bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), principalsFile+".corrupt") {
			quarantined = true
		}
	}
	assert.True(t, quarantined)
}

func TestFileBackendStartsEmptyWithNoFiles(t *testing.T) {
	b := openFileBackend(t, t.TempDir())
	records, err := b.LoadPrincipals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileBackendSavePrincipalsReplacesSet(t *testing.T) {
	ctx := context.Background()
	b := openFileBackend(t, t.TempDir())

	require.NoError(t, b.SavePrincipal(ctx, testRecord(1)))
	require.NoError(t, b.SavePrincipals(ctx, map[int64]*PrincipalRecord{2: testRecord(2)}))

	records, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.NotContains(t, records, int64(1))
	assert.Contains(t, records, int64(2))
}

func TestFileBackendLoadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := openFileBackend(t, t.TempDir())
	require.NoError(t, b.SavePrincipal(ctx, testRecord(42)))

	first, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	first[42].Status = StatusLoggedOut

	second, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, second[42].Status)
}
