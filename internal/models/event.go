package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID              string          `bun:"id,pk" json:"id"`
	Slug            string          `bun:"slug,unique,notnull" json:"slug"`
	Name            string          `bun:"name,notnull" json:"name"`
	EventDate       time.Time       `bun:"event_date,nullzero" json:"event_date,omitempty"`
	Price           decimal.Decimal `bun:"price,type:numeric(12,2),notnull" json:"price"`
	MaxCapacity     int             `bun:"max_capacity,notnull" json:"max_capacity"`
	CurrentCapacity int             `bun:"current_capacity,notnull" json:"current_capacity"`
	NeedsReview     bool            `bun:"needs_review,notnull" json:"needs_review"`
	CreatedAt       time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

func (e *Event) Available() int {
	return e.MaxCapacity - e.CurrentCapacity
}
