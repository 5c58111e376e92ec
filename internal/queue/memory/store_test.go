package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/queue"
	"github.com/JakeFAU/taxcrawl/internal/queue/memory"
)

var (
	k1 = parcel.MustParse("1000010001")
	k2 = parcel.MustParse("1000010002")
	k3 = parcel.MustParse("3000010001")
)

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Build(ctx, "bbls", []parcel.Key{k3, k1, k2}))

	keys, err := s.FetchUnprocessed(ctx, "bbls", 2)
	require.NoError(t, err)
	assert.Equal(t, []parcel.Key{k1, k2}, keys)

	require.NoError(t, s.RecordSuccess(ctx, "bbls", crawler.PropertyInfo{Key: k1, Name: "1 Main St"}))
	require.NoError(t, s.RecordFailure(ctx, "bbls", k2, "parcel 1000010002: property page does not exist"))

	keys, err = s.FetchUnprocessed(ctx, "bbls", 2)
	require.NoError(t, err)
	assert.Equal(t, []parcel.Key{k3}, keys)

	require.NoError(t, s.RecordFailure(ctx, "bbls", k3, "go to sidebar: section not found"))
	counts, err := s.Counts(ctx, "bbls")
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Successful: 1, Unsuccessful: 2, Remaining: 0}, counts)

	cleared, err := s.ClearErrors(ctx, "bbls")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	keys, err = s.FetchUnprocessed(ctx, "bbls", 10)
	require.NoError(t, err)
	assert.Equal(t, []parcel.Key{k3}, keys)

	var rows []queue.Row
	require.NoError(t, s.Iterate(ctx, "bbls", func(r queue.Row) error {
		rows = append(rows, r)
		return nil
	}))
	require.Len(t, rows, 3)
	assert.Equal(t, queue.Succeeded, rows[0].Status)
	require.NotNil(t, rows[0].Info)
	assert.Equal(t, "1 Main St", rows[0].Info.Name)
	assert.Equal(t, queue.Failed, rows[1].Status)
	assert.Equal(t, queue.Unprocessed, rows[2].Status)
}

func TestBuildKeepsExistingRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Build(ctx, "bbls", []parcel.Key{k1}))
	require.NoError(t, s.RecordSuccess(ctx, "bbls", crawler.PropertyInfo{Key: k1}))
	require.NoError(t, s.Build(ctx, "bbls", []parcel.Key{k1, k2}))

	counts, err := s.Counts(ctx, "bbls")
	require.NoError(t, err)
	assert.Equal(t, queue.Counts{Successful: 1, Remaining: 1}, counts)
}

func TestUnknownAndInvalidTables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewStore()
	_, err := s.Counts(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrTableNotFound)
	assert.ErrorIs(t, s.Build(ctx, "no-dashes", nil), queue.ErrInvalidTable)

	require.NoError(t, s.Build(ctx, "bbls", nil))
	assert.Error(t, s.RecordFailure(ctx, "bbls", k1, "boom"))
}

func TestIterateStopsOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Build(ctx, "bbls", []parcel.Key{k1, k2}))

	stop := errors.New("stop")
	calls := 0
	err := s.Iterate(ctx, "bbls", func(queue.Row) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
