package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	b := NewRedisBackend(mr.Addr(), "", 0, "numrelay-test:")
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRedisBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := openRedisBackend(t)

	require.NoError(t, b.SavePrincipal(ctx, testRecord(42)))

	records, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	require.Contains(t, records, int64(42))
	assert.Equal(t, StatusActive, records[42].Status)
	assert.True(t, records[42].Verified["@a"].Confirmed)
}

func TestRedisBackendSavePrincipalsAndDelete(t *testing.T) {
	ctx := context.Background()
	b := openRedisBackend(t)

	require.NoError(t, b.SavePrincipals(ctx, map[int64]*PrincipalRecord{
		1: testRecord(1),
		2: testRecord(2),
	}))

	records, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, b.DeletePrincipal(ctx, 1))
	records, err = b.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.NotContains(t, records, int64(1))
	assert.Contains(t, records, int64(2))
}

func TestRedisBackendHealth(t *testing.T) {
	b := openRedisBackend(t)
	assert.NoError(t, b.Health(context.Background()))
}
