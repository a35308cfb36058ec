package db

import (
	"context"
	"time"

	"ms-checkout/internal/models"
)

// WebhookEventProcessed reports whether a processor event id was already handled.
func (d *DB) WebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.ProcessedWebhookEvent)(nil)).
		Where("event_id = ?", eventID).
		Exists(ctx)
}

func (d *DB) MarkWebhookEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := d.Bun.NewInsert().
		Model(&models.ProcessedWebhookEvent{
			EventID:     eventID,
			EventType:   eventType,
			ProcessedAt: time.Now().UTC(),
		}).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	return err
}
