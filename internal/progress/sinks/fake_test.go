package sinks_test

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

type publishedMessage struct {
	Topic      string
	Payload    any
	Attributes map[string]string
}

// recordingPublisher stores publishes for inspection.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, publishedMessage{Topic: topic, Payload: payload, Attributes: maps.Clone(attrs)})
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

func (p *recordingPublisher) Messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}
