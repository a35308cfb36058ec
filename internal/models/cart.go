package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemWine     ItemType = "wine"
	ItemEvent    ItemType = "event"
	ItemDivers   ItemType = "divers"
	ItemGiftCard ItemType = "gift_card"
)

// LineBase holds the fields every cart line carries.
type LineBase struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

func (b LineBase) LineTotal() decimal.Decimal {
	return b.Price.Mul(decimal.NewFromInt(int64(b.Quantity)))
}

// CartLine is one of WineLine, EventLine, DiversLine or GiftCardLine.
type CartLine interface {
	Kind() ItemType
	Base() LineBase
	cartLine()
}

type WineLine struct {
	LineBase
	Winery  string
	Vintage string
	Size    string
}

type EventLine struct {
	LineBase
	Slug string
	Date time.Time
}

type DiversLine struct {
	LineBase
}

type GiftCardLine struct {
	LineBase
	RecipientEmail string
}

func (WineLine) Kind() ItemType     { return ItemWine }
func (EventLine) Kind() ItemType    { return ItemEvent }
func (DiversLine) Kind() ItemType   { return ItemDivers }
func (GiftCardLine) Kind() ItemType { return ItemGiftCard }

func (l WineLine) Base() LineBase     { return l.LineBase }
func (l EventLine) Base() LineBase    { return l.LineBase }
func (l DiversLine) Base() LineBase   { return l.LineBase }
func (l GiftCardLine) Base() LineBase { return l.LineBase }

func (WineLine) cartLine()     {}
func (EventLine) cartLine()    {}
func (DiversLine) cartLine()   {}
func (GiftCardLine) cartLine() {}

// NewOrderItem snapshots a cart line for persistence.
func NewOrderItem(id, orderID string, line CartLine) OrderItem {
	base := line.Base()
	item := OrderItem{
		ID:        id,
		OrderID:   orderID,
		ItemType:  line.Kind(),
		ProductID: base.ProductID,
		Name:      base.Name,
		UnitPrice: base.Price,
		Quantity:  base.Quantity,
		LineTotal: base.LineTotal(),
	}

	switch l := line.(type) {
	case WineLine:
		item.Vendor = l.Winery
		item.Vintage = l.Vintage
		item.Size = l.Size
	case EventLine:
		item.EventSlug = l.Slug
		item.EventDate = l.Date
	case GiftCardLine:
		item.Recipient = l.RecipientEmail
	}
	return item
}
