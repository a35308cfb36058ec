package template

import (
	"errors"
	"fmt"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/tickets/qr"
)

// Renderer produces the QR code and optional PDF attached to each ticket in the
// confirmation email.
type Renderer struct {
	qr     *qr.QRGenerator
	pdf    *TicketPDFGenerator
	logger *logger.Logger
}

func NewRenderer(qrGen *qr.QRGenerator, pdf *TicketPDFGenerator, log *logger.Logger) *Renderer {
	return &Renderer{qr: qrGen, pdf: pdf, logger: log}
}

// Render fails only when the QR code cannot be produced. A missing PDF is logged
// and the ticket goes out with its QR code alone.
func (r *Renderer) Render(t models.EventTicket, event models.Event, orderNumber string) (models.TicketWithQRCode, error) {
	data := TicketDataFrom(t, event, orderNumber)
	out := models.TicketWithQRCode{
		TicketNumber:   t.TicketNumber,
		RedemptionCode: t.RedemptionCode,
		EventName:      event.Name,
		EventDate:      event.EventDate,
		HolderName:     t.HolderName,
		PricePaid:      data.PricePaid,
	}

	png, err := r.qr.Generate(qr.Payload{
		TicketNumber:   t.TicketNumber,
		RedemptionCode: t.RedemptionCode,
		EventID:        t.EventID,
		OrderNumber:    orderNumber,
	})
	if err != nil {
		return out, fmt.Errorf("generate QR for %s: %w", t.TicketNumber, err)
	}
	out.QRCode = png

	if r.pdf == nil {
		return out, nil
	}
	pdf, err := r.pdf.Generate(data, png)
	switch {
	case errors.Is(err, ErrFontNotConfigured):
	case err != nil:
		r.logger.Warn("TICKET", fmt.Sprintf("PDF for %s not generated: %v", t.TicketNumber, err))
	default:
		out.PDF = pdf
	}
	return out, nil
}
