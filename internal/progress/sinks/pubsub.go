package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/progress"
)

// MessagePublisher sends a payload to a topic.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, payload any, attrs map[string]string) (string, error)
}

// PubSubSink announces snapshots on a topic. Publish failures are logged and
// never fail the crawl.
type PubSubSink struct {
	publisher MessagePublisher
	topic     string
	runID     string
	logger    *zap.Logger
}

// NewPubSubSink creates a PubSubSink. runID is attached to every message.
func NewPubSubSink(publisher MessagePublisher, topic, runID string, logger *zap.Logger) *PubSubSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{publisher: publisher, topic: topic, runID: runID, logger: logger}
}

// Consume publishes snap.
func (s *PubSubSink) Consume(ctx context.Context, snap progress.Snapshot) error {
	attrs := map[string]string{"table": snap.Table}
	if s.runID != "" {
		attrs["run_id"] = s.runID
	}
	id, err := s.publisher.Publish(ctx, s.topic, snap, attrs)
	if err != nil {
		s.logger.Warn("progress publish failed", zap.String("topic", s.topic), zap.Error(err))
		return nil
	}
	s.logger.Debug("progress published", zap.String("topic", s.topic), zap.String("message_id", id))
	return nil
}

// Close implements progress.Sink.
func (s *PubSubSink) Close(context.Context) error { return nil }
