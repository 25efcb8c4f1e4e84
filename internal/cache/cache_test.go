package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	got, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPrefixedJSON(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	store := Prefixed{Store: mem, Prefix: "p:"}

	require.NoError(t, SetJSON(ctx, store, "price", map[string]int{"a": 1}, 0))
	_, found, err := mem.Get(ctx, "p:price")
	require.NoError(t, err)
	assert.True(t, found)

	var out map[string]int
	found, err = GetJSON(ctx, store, "price", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, out["a"])

	require.NoError(t, store.Delete(ctx, "price"))
	found, err = GetJSON(ctx, store, "price", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
