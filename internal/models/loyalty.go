package models

import (
	"time"

	"github.com/uptrace/bun"
)

type LoyaltyAccount struct {
	bun.BaseModel `bun:"table:loyalty_accounts,alias:la"`

	UserID    string    `bun:"user_id,pk" json:"user_id"`
	Balance   int       `bun:"balance,notnull" json:"balance"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type LoyaltyTransaction struct {
	bun.BaseModel `bun:"table:loyalty_transactions,alias:lt"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull,unique:loyalty_order_user" json:"user_id"`
	OrderID   string    `bun:"order_id,notnull,unique:loyalty_order_user" json:"order_id"`
	Delta     int       `bun:"delta,notnull" json:"delta"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type ProcessedWebhookEvent struct {
	bun.BaseModel `bun:"table:processed_webhook_events,alias:pwe"`

	EventID     string    `bun:"event_id,pk" json:"event_id"`
	EventType   string    `bun:"event_type,notnull" json:"event_type"`
	ProcessedAt time.Time `bun:"processed_at,notnull" json:"processed_at"`
}
