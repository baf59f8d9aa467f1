package realtime

import (
	"context"

	"mathquest/internal/logger"
)

// Publisher wraps a Bus for services: payload encoding and delivery errors
// are logged, never returned, because updates are sent after commit.
type Publisher struct {
	bus Bus
	log *logger.Logger
}

// NewPublisher creates a publisher. A nil bus discards updates.
func NewPublisher(bus Bus, log *logger.Logger) *Publisher {
	return &Publisher{bus: bus, log: log}
}

// Publish encodes v and sends it on topic
func (p *Publisher) Publish(ctx context.Context, topic, event string, v interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	u, err := NewUpdate(topic, event, v)
	if err != nil {
		p.log.Warn("Failed to encode update", "topic", topic, "event", event, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, u); err != nil {
		p.log.Warn("Failed to publish update", "topic", topic, "event", event, "error", err)
	}
}
