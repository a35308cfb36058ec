package kafka

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/events"
	"ms-checkout/internal/logger"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// EventPublisher streams domain events to Kafka, keyed by order id so one order's
// events stay ordered within a partition.
type EventPublisher struct {
	publisher Publisher
	topic     string
	timeout   time.Duration
	logger    *logger.Logger
}

func NewEventPublisher(publisher Publisher, topic string, log *logger.Logger) *EventPublisher {
	return &EventPublisher{
		publisher: publisher,
		topic:     topic,
		timeout:   5 * time.Second,
		logger:    log,
	}
}

// Emit publishes on a detached context so a cancelled request does not drop the
// event. Failures are logged only.
func (p *EventPublisher) Emit(ctx context.Context, e events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	key := e.OrderID
	if key == "" {
		key = string(e.Kind)
	}

	if err := p.publisher.PublishJSON(pubCtx, p.topic, key, e); err != nil {
		p.logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for order %s: %v", e.Kind, e.OrderNumber, err))
		return
	}
	p.logger.LogKafka(string(e.Kind), p.topic, e.OrderNumber)
}
