// Package dispatcher runs the crawl loop: fetch a batch of unprocessed
// parcels, crawl them concurrently, publish progress, repeat.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/taxcrawl/internal/progress"
	"github.com/JakeFAU/taxcrawl/internal/queue"
	"github.com/JakeFAU/taxcrawl/internal/worker"
)

// Dispatcher fans batches of queue rows out to a fixed pool of workers.
// Worker i always serves slot i of a batch, so the batch size is the pool size.
type Dispatcher struct {
	store    queue.Store
	table    string
	workers  []*worker.Worker
	progress progress.Sink
	runID    string
	logger   *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithRunID overrides the generated run identifier, so sinks built before
// the Dispatcher can carry it.
func WithRunID(id string) Option {
	return func(d *Dispatcher) {
		if id != "" {
			d.runID = id
		}
	}
}

// New creates a Dispatcher. A nil sink disables progress publishing.
func New(
	store queue.Store,
	table string,
	workers []*worker.Worker,
	sink progress.Sink,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = progress.Multi{}
	}
	d := &Dispatcher{
		store:    store,
		table:    table,
		workers:  workers,
		progress: sink,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logger.With(zap.String("run_id", d.runID), zap.String("table", table))
	return d
}

// RunID identifies this crawl in logs and published messages.
func (d *Dispatcher) RunID() string { return d.runID }

// Run crawls until no unprocessed rows remain. Every worker is shut down on
// return, whatever the outcome.
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	if len(d.workers) == 0 {
		return errors.New("dispatcher needs at least one worker")
	}
	defer func() {
		err = errors.Join(err, d.shutdown(context.WithoutCancel(ctx)))
	}()

	d.logger.Info("crawl starting", zap.Int("concurrency", len(d.workers)))
	if err := d.publish(ctx); err != nil {
		return err
	}
	batches := 0
	for {
		keys, err := d.store.FetchUnprocessed(ctx, d.table, len(d.workers))
		if err != nil {
			return fmt.Errorf("fetch batch: %w", err)
		}
		if len(keys) == 0 {
			d.logger.Info("crawl finished", zap.Int("batches", batches))
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for i, key := range keys {
			w := d.workers[i]
			g.Go(func() error {
				return w.Process(gctx, key)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		batches++

		if err := d.publish(ctx); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context) error {
	snap, err := progress.Collect(ctx, d.store, d.table)
	if err != nil {
		return err
	}
	if err := d.progress.Consume(ctx, snap); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

func (d *Dispatcher) shutdown(ctx context.Context) error {
	var errs []error
	for _, w := range d.workers {
		if err := w.Shutdown(ctx); err != nil {
			d.logger.Warn("worker shutdown failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
