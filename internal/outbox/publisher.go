// Package outbox drains the transactional outbox into downstream queues.
package outbox

import (
	"context"
	"log/slog"
)

// Message is one event delivered to one destination.
type Message struct {
	Key       string // aggregate id; keeps per-record ordering on partitioned transports
	EventType string
	Payload   []byte
}

// Publisher delivers a message to a named downstream queue.
type Publisher interface {
	Publish(ctx context.Context, destination string, msg Message) error
	Close() error
}

// LogPublisher only logs. It is the default when no transport is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, destination string, msg Message) error {
	p.logger.Info("outbox.publish",
		"destination", destination,
		"event_type", msg.EventType,
		"key", msg.Key,
		"bytes", len(msg.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
