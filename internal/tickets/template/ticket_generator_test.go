package template

import (
	"bytes"
	"os"
	"testing"
	"time"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/tickets/qr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const systemFont = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"

func sampleTicket() (models.EventTicket, models.Event) {
	event := models.Event{ID: "ev-1", Name: "Dégustation d'automne", EventDate: time.Date(2026, 11, 20, 18, 30, 0, 0, time.UTC)}
	ticket := models.EventTicket{
		EventID:        "ev-1",
		TicketNumber:   "TKT-1-000001",
		RedemptionCode: "EVT-1-00000001",
		HolderName:     "Anna Muster",
		PricePaid:      decimal.RequireFromString("45"),
	}
	return ticket, event
}

func TestGenerateWithoutFont(t *testing.T) {
	_, err := NewTicketPDFGenerator("").Generate(TicketData{}, nil)
	assert.ErrorIs(t, err, ErrFontNotConfigured)
}

func TestGenerateWithSystemFont(t *testing.T) {
	if _, err := os.Stat(systemFont); err != nil {
		t.Skip("DejaVu font not installed")
	}
	ticket, event := sampleTicket()

	pdf, err := NewTicketPDFGenerator(systemFont).Generate(TicketDataFrom(ticket, event, "ORD-1-000001"), nil)

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestRendererWithoutFontStillReturnsQR(t *testing.T) {
	ticket, event := sampleTicket()
	r := NewRenderer(qr.NewQRGenerator("secret"), NewTicketPDFGenerator(""), logger.NewDiscard())

	out, err := r.Render(ticket, event, "ORD-1-000001")

	require.NoError(t, err)
	assert.NotEmpty(t, out.QRCode)
	assert.Empty(t, out.PDF)
	assert.Equal(t, "45.00", out.PricePaid)
	assert.Equal(t, "Dégustation d'automne", out.EventName)
}
