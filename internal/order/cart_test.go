package order_test

import (
	"testing"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCartVariants(t *testing.T) {
	items := []models.CheckoutItem{
		wineItem("34.95", 2),
		eventItem("vevey-tasting", "45", 1),
		{ID: "opener", Name: "Corkscrew", Type: "divers", Price: dec("18"), Quantity: 1},
		{ID: "gc", Name: "Gift card", Type: "GIFT_CARD", Price: dec("100"), Quantity: 1, RecipientEmail: "friend@example.ch"},
	}

	cart, err := order.ParseCart(items)
	require.NoError(t, err)
	require.Len(t, cart, 4)

	wine, ok := cart[0].(models.WineLine)
	require.True(t, ok)
	assert.Equal(t, "Domaine Louis Bovard", wine.Winery)
	assert.True(t, wine.LineTotal().Equal(dec("69.90")))

	event, ok := cart[1].(models.EventLine)
	require.True(t, ok)
	assert.Equal(t, "vevey-tasting", event.Slug)
	assert.Equal(t, time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC), event.Date)

	assert.Equal(t, models.ItemDivers, cart[2].Kind())

	card, ok := cart[3].(models.GiftCardLine)
	require.True(t, ok)
	assert.Equal(t, "friend@example.ch", card.RecipientEmail)
}

func TestParseCartRejects(t *testing.T) {
	tests := []struct {
		name  string
		item  models.CheckoutItem
		field string
	}{
		{"unknown type", models.CheckoutItem{Name: "Cheese", Type: "food", Price: dec("5"), Quantity: 1}, "items[0].type"},
		{"negative price", models.CheckoutItem{Name: "Refund", Type: "divers", Price: dec("-5"), Quantity: 1}, "items[0].price"},
		{"no name", models.CheckoutItem{Type: "divers", Price: dec("5"), Quantity: 1}, "items[0].name"},
		{"wine without winery", models.CheckoutItem{Name: "Chasselas", Type: "wine", Price: dec("20"), Quantity: 1}, "items[0].winery"},
		{"bad event date", models.CheckoutItem{Name: "Tasting", Type: "event", EventSlug: "x", EventDate: "next friday", Price: dec("20"), Quantity: 1}, "items[0].event_date"},
		{"bad recipient", models.CheckoutItem{Name: "Gift card", Type: "gift_card", RecipientEmail: "not-an-email", Price: dec("20"), Quantity: 1}, "items[0].recipient_email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := order.ParseCart([]models.CheckoutItem{tt.item})
			var verr *order.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
