package notify

import (
	"context"
	"fmt"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
)

type Template string

const (
	TemplateOrderConfirmation Template = "order_confirmation"
	TemplateGiftCard          Template = "gift_card"
)

// Email is the payload handed to the outbound mail service.
type Email struct {
	To       string      `json:"to"`
	Template Template    `json:"template"`
	Subject  string      `json:"subject"`
	Data     interface{} `json:"data"`
	QueuedAt time.Time   `json:"queued_at"`
}

type OrderConfirmation struct {
	OrderNumber    string                    `json:"order_number"`
	CustomerName   string                    `json:"customer_name"`
	DeliveryMethod models.DeliveryMethod     `json:"delivery_method"`
	Items          []models.OrderItem        `json:"items"`
	Subtotal       string                    `json:"subtotal"`
	ShippingCost   string                    `json:"shipping_cost"`
	GiftWrapCost   string                    `json:"gift_wrap_cost"`
	DiscountAmount string                    `json:"discount_amount"`
	TaxAmount      string                    `json:"tax_amount"`
	Total          string                    `json:"total"`
	LoyaltyPoints  int                       `json:"loyalty_points"`
	Tickets        []models.TicketWithQRCode `json:"tickets,omitempty"`
}

type GiftCard struct {
	Code        string    `json:"code"`
	Value       string    `json:"value"`
	ValidUntil  time.Time `json:"valid_until,omitempty"`
	OrderNumber string    `json:"order_number"`
	Remainder   bool      `json:"remainder"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, email Email) error
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// KafkaDispatcher queues emails on a topic consumed by the mail service.
type KafkaDispatcher struct {
	publisher Publisher
	topic     string
	logger    *logger.Logger
}

func NewKafkaDispatcher(publisher Publisher, topic string, log *logger.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: publisher, topic: topic, logger: log}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, email Email) error {
	if email.To == "" {
		return fmt.Errorf("email %s has no recipient", email.Template)
	}
	if email.QueuedAt.IsZero() {
		email.QueuedAt = time.Now().UTC()
	}
	if err := d.publisher.PublishJSON(ctx, d.topic, email.To, email); err != nil {
		return fmt.Errorf("queue %s email: %w", email.Template, err)
	}
	d.logger.LogKafka("EMAIL_QUEUED", d.topic, string(email.Template))
	return nil
}

// LogDispatcher only logs. Used when Kafka is disabled.
type LogDispatcher struct {
	Logger *logger.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, email Email) error {
	d.Logger.Info("EMAIL", fmt.Sprintf("[%s] to=%s subject=%q (delivery disabled)", email.Template, email.To, email.Subject))
	return nil
}
