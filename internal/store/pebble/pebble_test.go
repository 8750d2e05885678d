package pebble_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/changyunjeff/campus-mp/internal/store/pebble"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := pebble.Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, c.SetAll(ctx, "message_history", map[string][]byte{"u1": []byte("x"), "u2": []byte("y")}))
	require.NoError(t, c.SetAll(ctx, "message_history_extra", map[string][]byte{"u1": []byte("z")}))
	require.NoError(t, c.SetAll(ctx, "message_history", map[string][]byte{"u2": []byte("y2")}))

	got, err := c.GetAll(ctx, "message_history")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"u2": []byte("y2")}, got)

	extra, err := c.GetAll(ctx, "message_history_extra")
	require.NoError(t, err)
	assert.Equal(t, []byte("z"), extra["u1"])

	require.NoError(t, c.Close())

	reopened, err := pebble.Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()
	got, err = reopened.GetAll(ctx, "message_history")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"u2": []byte("y2")}, got)
}
