//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresStore starts a PostgreSQL container and opens a store on it
func setupPostgresStore(t *testing.T) *SQLStore {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("conflictmap_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(Config{Driver: "postgres", DSN: connStr, MaxConns: 5, MinConns: 1}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgresContainer.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	return store
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupPostgresStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	old := testSnapshot("old", now.AddDate(0, 0, -60))
	_, err := store.SaveScan(ctx, old)
	require.NoError(t, err)

	original := testSnapshot("run-1", now)
	id, err := store.SaveScan(ctx, original)
	require.NoError(t, err)

	got, err := store.GetScan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, original, got)

	latest, err := store.LatestScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)

	n, err := store.DeleteOldScans(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalScans)
	assert.Equal(t, int64(1), stats.CriticalConflicts)
}
