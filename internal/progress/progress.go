package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// Snapshot is the published progress of one queue.
type Snapshot struct {
	Table        string `json:"table"`
	Successful   int64  `json:"successful"`
	Unsuccessful int64  `json:"unsuccessful"`
	Remaining    int64  `json:"remaining"`
}

// NewSnapshot builds a Snapshot from queue counts.
func NewSnapshot(table string, c queue.Counts) Snapshot {
	return Snapshot{
		Table:        table,
		Successful:   c.Successful,
		Unsuccessful: c.Unsuccessful,
		Remaining:    c.Remaining,
	}
}

// Counts converts back to queue counts.
func (s Snapshot) Counts() queue.Counts {
	return queue.Counts{Successful: s.Successful, Unsuccessful: s.Unsuccessful, Remaining: s.Remaining}
}

// StatusKey is the cache key a table's snapshot is published under.
func StatusKey(table string) string {
	return "status-" + table + ".json"
}

// Sink consumes snapshots. Implementations must be safe for concurrent use.
type Sink interface {
	Consume(ctx context.Context, snap Snapshot) error
	Close(ctx context.Context) error
}

// Multi fans a snapshot out to every sink, continuing past failures.
type Multi []Sink

// Consume implements Sink.
func (m Multi) Consume(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Consume(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collect reads the current counts of table.
func Collect(ctx context.Context, store queue.Store, table string) (Snapshot, error) {
	c, err := store.Counts(ctx, table)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count %s: %w", table, err)
	}
	return NewSnapshot(table, c), nil
}

// Status answers the "report status" action.
type Status struct {
	Snapshot
	// SnapshotURL locates the last published snapshot, when the cache backend
	// can produce a URL.
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

// Report returns live counts for table plus the locator of its published snapshot.
func Report(ctx context.Context, store queue.Store, snapshots cache.Cache[Snapshot], table string) (Status, error) {
	snap, err := Collect(ctx, store, table)
	if err != nil {
		return Status{}, err
	}
	status := Status{Snapshot: snap}
	if snapshots != nil {
		if url, ok := snapshots.URLForKey(StatusKey(table)); ok {
			status.SnapshotURL = url
		}
	}
	return status, nil
}
