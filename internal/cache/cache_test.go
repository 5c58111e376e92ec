package cache_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/storage/memory"
)

type failingBackend struct{ *memory.BlobStore }

var errDisk = errors.New("disk on fire")

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDisk }
func (failingBackend) Set(context.Context, string, []byte) error         { return errDisk }

func TestLazyGetComputesOnce(t *testing.T) {
	t.Parallel()

	var hits, misses int
	c := cache.New(memory.NewBlobStore(), cache.WithObserver(func(_ string, hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte("value"), nil
	}

	first, err := c.LazyGet(ctx, "k", compute)
	require.NoError(t, err)
	second, err := c.LazyGet(ctx, "k", compute)
	require.NoError(t, err)

	assert.Equal(t, []byte("value"), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestLazyGetDoesNotStoreFailures(t *testing.T) {
	t.Parallel()

	backend := memory.NewBlobStore()
	c := cache.New(backend)
	boom := errors.New("boom")

	_, err := c.LazyGet(context.Background(), "k", func(context.Context) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Empty(t, backend.Keys())
}

func TestBackendErrorsAreMarked(t *testing.T) {
	t.Parallel()

	c := cache.New(failingBackend{BlobStore: memory.NewBlobStore()})
	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrBackend)
	assert.ErrorIs(t, err, errDisk)

	_, err = c.LazyGet(context.Background(), "k", func(context.Context) ([]byte, error) { return []byte("x"), nil })
	assert.ErrorIs(t, err, cache.ErrBackend)
}

func TestTextOverBrotli(t *testing.T) {
	t.Parallel()

	backend := memory.NewBlobStore()
	text := cache.AsText(cache.AsBrotli(cache.New(backend)))
	ctx := context.Background()

	require.NoError(t, text.Set(ctx, "html/1/01373/0001/nopv.html", "<html>hello</html>"))
	assert.Equal(t, []string{"html/1/01373/0001/nopv.html.br"}, backend.Keys())

	raw, ok, err := backend.Get(ctx, "html/1/01373/0001/nopv.html.br")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, "<html>hello</html>", string(raw))

	got, ok, err := text.Get(ctx, "html/1/01373/0001/nopv.html")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<html>hello</html>", got)

	url, ok := text.URLForKey("html/1/01373/0001/nopv.html")
	assert.True(t, ok)
	assert.Equal(t, "memory://html/1/01373/0001/nopv.html.br", url)

	require.NoError(t, text.Delete(ctx, "html/1/01373/0001/nopv.html"))
	assert.Empty(t, backend.Keys())
}

func TestBrotliRoundTrip(t *testing.T) {
	t.Parallel()

	binary := make([]byte, 8<<10)
	_, _ = rand.New(rand.NewSource(42)).Read(binary)
	binary = append(binary, 0x00, 0xff, 0xfe, 0xc3, 0x28)

	tests := []struct {
		name    string
		key     string
		payload []byte
	}{
		{name: "text", key: "x.txt", payload: []byte("The quick brown fox jumps over the lazy dog. The quick brown fox.")},
		{name: "empty text", key: "x.txt", payload: []byte{}},
		{name: "empty pdf", key: "x.pdf", payload: []byte{}},
		{name: "empty unknown extension", key: "x.unknownext", payload: []byte{}},
		{name: "binary pdf", key: "x.pdf", payload: binary},
		{name: "binary text", key: "x.txt", payload: binary},
		{name: "binary unknown extension", key: "x.unknownext", payload: binary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, err := cache.BrotliConverter.Encode(tt.key, tt.payload)
			require.NoError(t, err)
			b, err := cache.BrotliConverter.Encode(tt.key, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, a, b)
			assert.NotEmpty(t, a)

			out, err := cache.BrotliConverter.Decode(tt.key, a)
			require.NoError(t, err)
			assert.Len(t, out, len(tt.payload))
			assert.True(t, bytes.Equal(tt.payload, out))
		})
	}
}

func TestEmptyTextThroughBrotliLazyGet(t *testing.T) {
	t.Parallel()

	backend := memory.NewBlobStore()
	text := cache.AsText(cache.AsBrotli(cache.New(backend)))
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "", nil
	}

	for range 2 {
		got, err := text.LazyGet(ctx, "txt/1/01373/0001/soa.txt", compute)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"txt/1/01373/0001/soa.txt.br"}, backend.Keys())

	require.NoError(t, text.Delete(ctx, "txt/1/01373/0001/soa.txt"))
	assert.Empty(t, backend.Keys())
}

type info struct {
	Name  string `json:"name"`
	Units int    `json:"units"`
}

func TestJSONLazyGet(t *testing.T) {
	t.Parallel()

	c := cache.AsJSON[info](cache.New(memory.NewBlobStore()))
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (info, error) {
		calls++
		return info{Name: "a", Units: 3}, nil
	}

	v, err := c.LazyGet(ctx, "status.json", compute)
	require.NoError(t, err)
	assert.Equal(t, info{Name: "a", Units: 3}, v)

	v, err = c.LazyGet(ctx, "status.json", compute)
	require.NoError(t, err)
	assert.Equal(t, info{Name: "a", Units: 3}, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "json(in-memory cache)", c.Description())
}

func TestJSONDecodeFailure(t *testing.T) {
	t.Parallel()

	backend := memory.NewBlobStore()
	require.NoError(t, backend.Set(context.Background(), "bad.json", []byte("{")))
	c := cache.AsJSON[info](cache.New(backend))

	_, _, err := c.Get(context.Background(), "bad.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrBackend)
}
