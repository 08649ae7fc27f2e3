package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend integration tests run only when the target service is reachable;
// set NUMRELAY_TEST_MONGODB_URI / NUMRELAY_TEST_POSTGRES_DSN to enable.

func TestMongoBackendIntegration(t *testing.T) {
	uri := os.Getenv("NUMRELAY_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("NUMRELAY_TEST_MONGODB_URI not set")
	}

	ctx := context.Background()
	b := NewMongoBackend(uri, "numrelay_test")
	require.NoError(t, b.Initialize(ctx))
	t.Cleanup(func() { b.Close() })

	exerciseBackend(t, b)
}

func TestPostgresBackendIntegration(t *testing.T) {
	dsn := os.Getenv("NUMRELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NUMRELAY_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	b := NewPostgresBackend(dsn)
	require.NoError(t, b.Initialize(ctx))
	t.Cleanup(func() { b.Close() })

	exerciseBackend(t, b)
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.SavePrincipal(ctx, testRecord(9001)))

	records, err := b.LoadPrincipals(ctx)
	require.NoError(t, err)
	require.Contains(t, records, int64(9001))
	assert.Equal(t, StatusActive, records[9001].Status)

	require.NoError(t, b.DeletePrincipal(ctx, 9001))
	records, err = b.LoadPrincipals(ctx)
	require.NoError(t, err)
	assert.NotContains(t, records, int64(9001))
}
