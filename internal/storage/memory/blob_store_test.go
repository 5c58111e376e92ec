package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	payload := []byte("content")
	require.NoError(t, store.Set(ctx, "txt/page.txt", payload))
	payload[0] = 'C'

	got, ok, err := store.Get(ctx, "txt/page.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "content", string(got))

	got[0] = 'X'
	again, _, _ := store.Get(ctx, "txt/page.txt")
	assert.Equal(t, "content", string(again))
}

func TestBlobStoreDeleteAndKeys(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "b", []byte("2")))
	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	assert.Equal(t, []string{"a", "b"}, store.Keys())

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "missing"))
	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	url, ok := store.URLForKey("b")
	assert.True(t, ok)
	assert.Equal(t, "memory://b", url)
}
