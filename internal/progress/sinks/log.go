package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/progress"
)

// LogSink logs every snapshot.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the snapshot using structured fields.
func (s *LogSink) Consume(_ context.Context, snap progress.Snapshot) error {
	s.logger.Info("crawl progress",
		zap.String("table", snap.Table),
		zap.Int64("successful", snap.Successful),
		zap.Int64("unsuccessful", snap.Unsuccessful),
		zap.Int64("remaining", snap.Remaining),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
