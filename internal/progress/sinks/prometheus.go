package sinks

import (
	"context"

	"github.com/JakeFAU/taxcrawl/internal/metrics"
	"github.com/JakeFAU/taxcrawl/internal/progress"
)

// PrometheusSink mirrors snapshots into the taxcrawl_queue_rows gauge.
type PrometheusSink struct{}

// NewPrometheusSink returns a PrometheusSink.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

// Consume sets the gauge for each status.
func (PrometheusSink) Consume(_ context.Context, snap progress.Snapshot) error {
	metrics.SetQueueRows(snap.Table, snap.Successful, snap.Unsuccessful, snap.Remaining)
	return nil
}

// Close implements progress.Sink.
func (PrometheusSink) Close(context.Context) error { return nil }
