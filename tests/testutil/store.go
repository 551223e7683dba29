package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/labconsole/internal/model"
	"github.com/nhle/labconsole/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, ":memory:")
}

// NewMirrorFile writes ns into a fresh mirror database under t.TempDir at
// the given version and returns its path. The database is closed again so
// the code under test can open it itself.
func NewMirrorFile(t *testing.T, version uint64, ns []model.Notification) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notifications.db")
	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err, "creating mirror file")
	require.NoError(t, s.ReplaceNotifications(context.Background(), version, ns))
	require.NoError(t, s.Close())
	return path
}

func openStore(t *testing.T, dsn string) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(dsn)
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
