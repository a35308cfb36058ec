package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ms-checkout/internal/logger"
)

type Kind string

const (
	OrderCreated          Kind = "OrderCreated"
	PaymentConfirmed      Kind = "PaymentConfirmed"
	PaymentFailed         Kind = "PaymentFailed"
	TicketOverbooked      Kind = "TicketOverbooked"
	ReconciliationAnomaly Kind = "ReconciliationAnomaly"
)

type Event struct {
	Kind        Kind              `json:"kind"`
	OrderID     string            `json:"order_id,omitempty"`
	OrderNumber string            `json:"order_number,omitempty"`
	Message     string            `json:"message"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	At          time.Time         `json:"at"`
}

func New(kind Kind, orderID, orderNumber, message string) Event {
	return Event{
		Kind:        kind,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Message:     message,
		At:          time.Now().UTC(),
	}
}

func (e Event) With(key, value string) Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// Observer receives domain events. Emit must not block the caller for long and
// never fails the business operation.
type Observer interface {
	Emit(ctx context.Context, e Event)
}

// LogObserver writes events through the service logger. Warnings and anomalies are
// logged at the level operators alert on.
type LogObserver struct {
	Logger *logger.Logger
}

func (o LogObserver) Emit(_ context.Context, e Event) {
	line := format(e)
	switch e.Kind {
	case ReconciliationAnomaly:
		o.Logger.Error("RECONCILE", line)
	case TicketOverbooked, PaymentFailed:
		o.Logger.Warn("EVENT", line)
	default:
		o.Logger.Info("EVENT", line)
	}
}

func format(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Kind)
	if e.OrderNumber != "" {
		fmt.Fprintf(&b, " order=%s", e.OrderNumber)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " - %s", e.Message)
	}
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Attributes[k])
	}
	return b.String()
}

// Multi fans an event out to several observers.
type Multi []Observer

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, o := range m {
		if o != nil {
			o.Emit(ctx, e)
		}
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
