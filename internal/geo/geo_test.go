package geo_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	collyfetcher "github.com/JakeFAU/taxcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/taxcrawl/internal/geo"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/storage/memory"
)

const courtStreet = `{
  "features": [
    {"properties": {"name": "150 COURT STREET", "borough": "Brooklyn",
      "addendum": {"pad": {"bbl": "3002920026"}}}},
    {"properties": {"name": "150 COURT STREET REAR", "borough": "Brooklyn", "pad_bbl": "3002920027"}}
  ]
}`

func TestClientResolve(t *testing.T) {
	t.Parallel()

	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotText = r.URL.Query().Get("text")
		w.Header().Set("Content-Type", "application/json")
		if gotText == "nowhere" {
			_, _ = w.Write([]byte(`{"features": []}`))
			return
		}
		_, _ = w.Write([]byte(courtStreet))
	}))
	defer srv.Close()

	client := geo.NewClient(collyfetcher.New(collyfetcher.Config{}, nil), srv.URL)

	res, err := client.Resolve(context.Background(), "150 court st")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "150 court st", gotText)
	assert.Equal(t, geo.Result{Name: "150 COURT STREET", Borough: "Brooklyn", BBL: "3002920026"}, *res)
	key, err := res.Key()
	require.NoError(t, err)
	assert.Equal(t, parcel.MustParse("3002920026"), key)

	res, err = client.Resolve(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSimplifyAndCacheKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "150 court st brooklyn", geo.SimplifyText("150 Court St., Brooklyn!"))
	assert.Equal(t, "geosearch/654_park-place.json", geo.CacheKey("654 Park-Place"))
}

type countingResolver struct {
	calls  int
	result *geo.Result
	err    error
	texts  []string
}

func (c *countingResolver) Resolve(_ context.Context, text string) (*geo.Result, error) {
	c.calls++
	c.texts = append(c.texts, text)
	return c.result, c.err
}

func TestCachedMemoizesHitsAndMisses(t *testing.T) {
	t.Parallel()

	backend := memory.NewBlobStore()
	inner := &countingResolver{result: &geo.Result{Name: "654 PARK PLACE", Borough: "Brooklyn", BBL: "3012380016"}}
	resolver := geo.NewCached(inner, cache.New(backend), nil)
	ctx := context.Background()

	for range 2 {
		res, err := resolver.Resolve(ctx, "654 Park Place!")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, "3012380016", res.BBL)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, []string{"654 park place"}, inner.texts)
	assert.Equal(t, []string{"geosearch/654_park_place.json"}, backend.Keys())

	miss := &countingResolver{}
	resolver = geo.NewCached(miss, cache.New(backend), nil)
	for range 2 {
		res, err := resolver.Resolve(ctx, "nowhere")
		require.NoError(t, err)
		assert.Nil(t, res)
	}
	assert.Equal(t, 1, miss.calls)
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	t.Parallel()

	backend := memory.NewBlobStore()
	boom := errors.New("boom")
	resolver := geo.NewCached(&countingResolver{err: boom}, cache.New(backend), nil)
	_, err := resolver.Resolve(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.Keys())
}
