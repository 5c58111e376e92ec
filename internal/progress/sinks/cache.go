package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/progress"
)

// CacheSink writes each snapshot to status-<table>.json so observers can poll it.
type CacheSink struct {
	store cache.Cache[progress.Snapshot]
}

// NewCacheSink wraps a JSON cache of snapshots.
func NewCacheSink(store cache.Cache[progress.Snapshot]) *CacheSink {
	return &CacheSink{store: store}
}

// Consume overwrites the table's status entry.
func (s *CacheSink) Consume(ctx context.Context, snap progress.Snapshot) error {
	if err := s.store.Set(ctx, progress.StatusKey(snap.Table), snap); err != nil {
		return fmt.Errorf("publish %s status: %w", snap.Table, err)
	}
	return nil
}

// Close implements progress.Sink.
func (s *CacheSink) Close(context.Context) error { return nil }
