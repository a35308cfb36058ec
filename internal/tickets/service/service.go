package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"
)

// Store is the transactional ledger surface the allocator writes through.
type Store interface {
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	CreateEvent(ctx context.Context, event *models.Event) error
	InsertTickets(ctx context.Context, tickets []models.EventTicket) error
	IncrementEventCapacity(ctx context.Context, eventID string, n int) error
}

type Overbooking struct {
	EventID   string
	Slug      string
	Requested int
	Available int
}

// Allocation reports what one order's event lines produced.
type Allocation struct {
	Tickets    []models.EventTicket
	Overbooked []Overbooking
	Fabricated []string
}

type Allocator struct {
	defaultCapacity int
	logger          *logger.Logger
}

func NewAllocator(defaultCapacity int, log *logger.Logger) *Allocator {
	return &Allocator{defaultCapacity: defaultCapacity, logger: log}
}

// Allocate issues one ticket per seat for every event line of a paid order. A paid
// ticket is never refused: a missing event is created from the line snapshot and
// flagged for review, and exceeding capacity is reported, not rejected.
func (a *Allocator) Allocate(ctx context.Context, store Store, order *models.Order, items []models.OrderItem) (Allocation, error) {
	var result Allocation
	issued := make(map[string]bool)

	for _, item := range items {
		if item.ItemType != models.ItemEvent || item.Quantity <= 0 {
			continue
		}

		event, fabricated, err := a.resolveEvent(ctx, store, item)
		if err != nil {
			return result, err
		}
		if fabricated {
			result.Fabricated = append(result.Fabricated, item.EventSlug)
			a.logger.Error("TICKET", fmt.Sprintf("Event %q missing for paid order %s, created for review", item.EventSlug, order.OrderNumber))
		}

		// Events awaiting review without a capacity have no limit to overbook.
		unknownCapacity := event.NeedsReview && event.MaxCapacity == 0
		if !unknownCapacity && event.Available() < item.Quantity {
			over := Overbooking{
				EventID:   event.ID,
				Slug:      event.Slug,
				Requested: item.Quantity,
				Available: event.Available(),
			}
			result.Overbooked = append(result.Overbooked, over)
			a.logger.Warn("TICKET", fmt.Sprintf("Event %s overbooked by order %s: requested %d, available %d",
				event.Slug, order.OrderNumber, over.Requested, over.Available))
		}

		tickets := make([]models.EventTicket, 0, item.Quantity)
		now := time.Now().UTC()
		for i := 0; i < item.Quantity; i++ {
			tickets = append(tickets, models.EventTicket{
				ID:             utils.GenerateUUID(),
				OrderID:        order.ID,
				EventID:        event.ID,
				TicketNumber:   uniqueCode(issued, utils.GenerateTicketNumber),
				RedemptionCode: uniqueCode(issued, utils.GenerateRedemptionCode),
				HolderName:     order.CustomerName,
				HolderEmail:    order.CustomerEmail,
				PricePaid:      item.UnitPrice,
				UserID:         order.UserID,
				IssuedAt:       now,
			})
		}

		if err := store.InsertTickets(ctx, tickets); err != nil {
			return result, fmt.Errorf("insert tickets for %s: %w", event.Slug, err)
		}
		if err := store.IncrementEventCapacity(ctx, event.ID, item.Quantity); err != nil {
			return result, fmt.Errorf("increment capacity of %s: %w", event.Slug, err)
		}
		result.Tickets = append(result.Tickets, tickets...)
	}

	return result, nil
}

func (a *Allocator) resolveEvent(ctx context.Context, store Store, item models.OrderItem) (*models.Event, bool, error) {
	event, err := store.GetEventBySlug(ctx, item.EventSlug)
	if err == nil {
		return event, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("look up event %s: %w", item.EventSlug, err)
	}

	event = &models.Event{
		ID:          utils.GenerateUUID(),
		Slug:        item.EventSlug,
		Name:        item.Name,
		EventDate:   item.EventDate,
		Price:       item.UnitPrice,
		MaxCapacity: a.defaultCapacity,
		NeedsReview: true,
	}
	if err := store.CreateEvent(ctx, event); err != nil {
		return nil, false, fmt.Errorf("create event %s: %w", item.EventSlug, err)
	}
	return event, true, nil
}

// uniqueCode regenerates until the code is unique within this allocation.
func uniqueCode(seen map[string]bool, gen func() string) string {
	for {
		code := gen()
		if !seen[code] {
			seen[code] = true
			return code
		}
	}
}
