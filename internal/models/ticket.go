package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type EventTicket struct {
	bun.BaseModel `bun:"table:event_tickets,alias:t"`

	ID             string          `bun:"id,pk" json:"id"`
	OrderID        string          `bun:"order_id,notnull" json:"order_id"`
	EventID        string          `bun:"event_id,notnull" json:"event_id"`
	TicketNumber   string          `bun:"ticket_number,unique,notnull" json:"ticket_number"`
	RedemptionCode string          `bun:"redemption_code,unique,notnull" json:"redemption_code"`
	HolderName     string          `bun:"holder_name" json:"holder_name"`
	HolderEmail    string          `bun:"holder_email" json:"holder_email"`
	PricePaid      decimal.Decimal `bun:"price_paid,type:numeric(12,2),notnull" json:"price_paid"`
	UserID         string          `bun:"user_id,nullzero" json:"user_id,omitempty"`
	IssuedAt       time.Time       `bun:"issued_at,notnull" json:"issued_at"`
}

// TicketWithQRCode is what the confirmation email carries per ticket.
type TicketWithQRCode struct {
	TicketNumber   string    `json:"ticket_number"`
	RedemptionCode string    `json:"redemption_code"`
	EventName      string    `json:"event_name"`
	EventDate      time.Time `json:"event_date,omitempty"`
	HolderName     string    `json:"holder_name"`
	PricePaid      string    `json:"price_paid"`
	QRCode         []byte    `json:"qr_code,omitempty"`
	PDF            []byte    `json:"pdf,omitempty"`
}
