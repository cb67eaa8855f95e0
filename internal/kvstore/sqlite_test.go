package kvstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan/internal/kvstore"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T) *kvstore.Store {
		t.Helper()
		store, err := kvstore.Open(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("missing key reports not found", func(t *testing.T) {
		store := open(t)

		value, ok, err := store.GetString(ctx, "dictionary")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, value)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		store := open(t)

		require.NoError(t, store.SetString(ctx, "dictionary", `{"tylenol":"acetaminophen"}`))

		value, ok, err := store.GetString(ctx, "dictionary")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"tylenol":"acetaminophen"}`, value)
	})

	t.Run("set overwrites existing values", func(t *testing.T) {
		store := open(t)

		require.NoError(t, store.SetString(ctx, "dictionary", "old"))
		require.NoError(t, store.SetString(ctx, "dictionary", "new"))

		value, ok, err := store.GetString(ctx, "dictionary")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "new", value)
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "cache.db")
		store, err := kvstore.Open(path)
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.SetString(ctx, "key", "value"))
	})
}
