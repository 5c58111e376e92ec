package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/dispatcher"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/progress"
	"github.com/JakeFAU/taxcrawl/internal/queue"
	"github.com/JakeFAU/taxcrawl/internal/queue/memory"
	"github.com/JakeFAU/taxcrawl/internal/worker"
)

type pool struct {
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

type fakeScraper struct {
	pool      *pool
	mu        sync.Mutex
	seen      []parcel.Key
	fail      map[parcel.Key]error
	shutdowns int
}

func (f *fakeScraper) PropertyInfo(_ context.Context, key parcel.Key) (crawler.PropertyInfo, error) {
	n := f.pool.inflight.Add(1)
	defer f.pool.inflight.Add(-1)
	for {
		cur := f.pool.maxInflight.Load()
		if n <= cur || f.pool.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.seen = append(f.seen, key)
	err := f.fail[key]
	f.mu.Unlock()
	if err != nil {
		return crawler.PropertyInfo{}, err
	}
	return crawler.PropertyInfo{Key: key}, nil
}

func (f *fakeScraper) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []progress.Snapshot
}

func (r *recordingSink) Consume(_ context.Context, s progress.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recordingSink) Close(context.Context) error { return nil }

func keys(t *testing.T, texts ...string) []parcel.Key {
	t.Helper()
	out := make([]parcel.Key, 0, len(texts))
	for _, s := range texts {
		out = append(out, parcel.MustParse(s))
	}
	return out
}

func setup(t *testing.T, n int, fail map[parcel.Key]error) (*memory.Store, []*fakeScraper, []*worker.Worker) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Build(context.Background(), "bbls",
		keys(t, "1000010001", "1000010002", "1000010003", "1000010004", "1000010005")))
	p := &pool{}
	var scrapers []*fakeScraper
	var workers []*worker.Worker
	for i := range n {
		s := &fakeScraper{pool: p, fail: fail}
		scrapers = append(scrapers, s)
		workers = append(workers, worker.New(i, s, store, "bbls", nil))
	}
	return store, scrapers, workers
}

func TestRunCrawlsEverythingInBatches(t *testing.T) {
	t.Parallel()

	failing := parcel.MustParse("1000010003")
	store, scrapers, workers := setup(t, 2, map[parcel.Key]error{failing: crawler.ErrSectionNotFound})
	sink := &recordingSink{}
	d := dispatcher.New(store, "bbls", workers, sink, nil)
	assert.NotEmpty(t, d.RunID())

	require.NoError(t, d.Run(context.Background()))

	counts, err := store.Counts(context.Background(), "bbls")
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Successful: 4, Unsuccessful: 1}, counts)

	// One snapshot before the first batch, then one per batch of two.
	require.Len(t, sink.snaps, 4)
	assert.Equal(t, int64(5), sink.snaps[0].Remaining)
	assert.Equal(t, int64(3), sink.snaps[1].Remaining)
	assert.Equal(t, int64(1), sink.snaps[2].Remaining)
	assert.Equal(t, progress.Snapshot{Table: "bbls", Successful: 4, Unsuccessful: 1}, sink.snaps[3])

	assert.LessOrEqual(t, scrapers[0].pool.maxInflight.Load(), int32(2))
	// Slot 0 gets the first key of every batch; slot 1 never sees the odd tail.
	assert.Len(t, scrapers[0].seen, 3)
	assert.Len(t, scrapers[1].seen, 2)
	for _, s := range scrapers {
		assert.Equal(t, 1, s.shutdowns)
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	t.Parallel()

	bad := parcel.MustParse("1000010001")
	backendErr := &cache.BackendError{Op: "get", Key: "html/x", Err: errors.New("bucket gone")}
	store, scrapers, workers := setup(t, 2, map[parcel.Key]error{bad: backendErr})
	sink := &recordingSink{}

	err := dispatcher.New(store, "bbls", workers, sink, nil).Run(context.Background())
	require.ErrorIs(t, err, cache.ErrBackend)

	counts, err := store.Counts(context.Background(), "bbls")
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Successful: 1, Remaining: 4}, counts)
	assert.Len(t, sink.snaps, 1, "no snapshot for a partially applied batch")
	for _, s := range scrapers {
		assert.Equal(t, 1, s.shutdowns)
	}
}

func TestRunMissingTable(t *testing.T) {
	t.Parallel()

	_, scrapers, workers := setup(t, 1, nil)
	err := dispatcher.New(memory.NewStore(), "bbls", workers, nil, nil).Run(context.Background())
	assert.ErrorIs(t, err, queue.ErrTableNotFound)
	assert.Equal(t, 1, scrapers[0].shutdowns)
}

func TestRunNeedsWorkers(t *testing.T) {
	t.Parallel()

	assert.Error(t, dispatcher.New(memory.NewStore(), "bbls", nil, nil, nil).Run(context.Background()))
}

func TestWithRunID(t *testing.T) {
	t.Parallel()

	store, _, workers := setup(t, 1, nil)
	d := dispatcher.New(store, "bbls", workers, nil, nil, dispatcher.WithRunID("run-1"))
	assert.Equal(t, "run-1", d.RunID())

	d = dispatcher.New(store, "bbls", workers, nil, nil, dispatcher.WithRunID(""))
	assert.NotEmpty(t, d.RunID())
}
