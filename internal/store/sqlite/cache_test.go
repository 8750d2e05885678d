package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/store/sqlite"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	c, err := sqlite.OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetAll(ctx, "a", map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")}))
	require.NoError(t, c.SetAll(ctx, "b", map[string][]byte{"k1": []byte("other")}))

	got, err := c.GetAll(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")}, got)

	t.Run("ReplaceDropsMissingKeys", func(t *testing.T) {
		require.NoError(t, c.SetAll(ctx, "a", map[string][]byte{"k2": []byte("v2b")}))
		got, err := c.GetAll(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{"k2": []byte("v2b")}, got)

		other, err := c.GetAll(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, []byte("other"), other["k1"])
	})

	t.Run("EmptyNamespace", func(t *testing.T) {
		got, err := c.GetAll(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
