// Package worker crawls one parcel at a time and records the outcome in the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/metrics"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// Scraper produces a PropertyInfo for a parcel and owns a browser session.
type Scraper interface {
	PropertyInfo(ctx context.Context, key parcel.Key) (crawler.PropertyInfo, error)
	Shutdown(ctx context.Context) error
}

// Worker binds one session slot to a queue table.
type Worker struct {
	slot    int
	scraper Scraper
	store   queue.Store
	table   string
	logger  *zap.Logger
}

// New constructs a Worker.
func New(slot int, scraper Scraper, store queue.Store, table string, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		slot:    slot,
		scraper: scraper,
		store:   store,
		table:   table,
		logger:  logger.With(zap.Int("slot", slot)),
	}
}

// Process crawls key and writes its row. A parcel's own failure is recorded
// and not returned. The returned error is fatal to the whole crawl: the
// context ended, the cache backend failed, or the queue could not be written.
func (w *Worker) Process(ctx context.Context, key parcel.Key) error {
	metrics.IncActiveSessions()
	defer metrics.DecActiveSessions()

	start := time.Now()
	w.logger.Info("crawling parcel", zap.Stringer("parcel", key))
	info, err := w.scraper.PropertyInfo(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, cache.ErrBackend) {
			return fmt.Errorf("parcel %s: %w", key, err)
		}
		w.logger.Warn("parcel failed",
			zap.Stringer("parcel", key),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		metrics.ObserveParcel(w.table, "failure")
		if err := w.store.RecordFailure(ctx, w.table, key, err.Error()); err != nil {
			return fmt.Errorf("record failure for %s: %w", key, err)
		}
		return nil
	}

	if err := w.store.RecordSuccess(ctx, w.table, info); err != nil {
		return fmt.Errorf("record success for %s: %w", key, err)
	}
	metrics.ObserveParcel(w.table, "success")
	w.logger.Info("parcel crawled",
		zap.Stringer("parcel", key),
		zap.Int("nopv", len(info.NOPV)),
		zap.Int("soa", len(info.SOA)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Shutdown releases the worker's browser.
func (w *Worker) Shutdown(ctx context.Context) error {
	if err := w.scraper.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown slot %d: %w", w.slot, err)
	}
	return nil
}
