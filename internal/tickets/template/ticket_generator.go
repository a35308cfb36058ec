package template

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"time"

	"ms-checkout/internal/models"

	"github.com/signintech/gopdf"
)

var ErrFontNotConfigured = errors.New("ticket font not configured")

// TicketData is everything printed on one ticket.
type TicketData struct {
	EventName      string
	EventDate      time.Time
	TicketNumber   string
	RedemptionCode string
	HolderName     string
	OrderNumber    string
	PricePaid      string
}

type TicketPDFGenerator struct {
	fontPath string
}

func NewTicketPDFGenerator(fontPath string) *TicketPDFGenerator {
	return &TicketPDFGenerator{fontPath: fontPath}
}

func (g *TicketPDFGenerator) Generate(ticket TicketData, qrCode []byte) ([]byte, error) {
	if g.fontPath == "" {
		return nil, ErrFontNotConfigured
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA5})
	pdf.AddPage()

	if err := pdf.AddTTFFont("ticket", g.fontPath); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	if err := pdf.SetFont("ticket", "", 18); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}

	pdf.SetX(40)
	pdf.SetY(40)
	if err := pdf.Cell(nil, ticket.EventName); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	if err := pdf.SetFont("ticket", "", 11); err != nil {
		return nil, fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetY(80)
	addTicketInfo(pdf, ticket)

	if len(qrCode) > 0 {
		addQRCode(pdf, qrCode, pdf.GetY()+20)
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func addTicketInfo(pdf *gopdf.GoPdf, ticket TicketData) {
	date := "to be announced"
	if !ticket.EventDate.IsZero() {
		date = ticket.EventDate.Format("02.01.2006 15:04")
	}

	info := []struct {
		Label string
		Value string
	}{
		{"Date", date},
		{"Ticket", ticket.TicketNumber},
		{"Code", ticket.RedemptionCode},
		{"Holder", ticket.HolderName},
		{"Order", ticket.OrderNumber},
		{"Price", "CHF " + ticket.PricePaid},
	}

	for _, item := range info {
		pdf.SetX(40)
		_ = pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(18)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte, y float64) {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		_ = pdf.Cell(nil, "QR code unavailable")
		return
	}
	_ = pdf.ImageFrom(img, 40, y, &gopdf.Rect{W: 140, H: 140})
}

// TicketDataFrom assembles the printable fields of a stored ticket.
func TicketDataFrom(t models.EventTicket, event models.Event, orderNumber string) TicketData {
	return TicketData{
		EventName:      event.Name,
		EventDate:      event.EventDate,
		TicketNumber:   t.TicketNumber,
		RedemptionCode: t.RedemptionCode,
		HolderName:     t.HolderName,
		OrderNumber:    orderNumber,
		PricePaid:      t.PricePaid.StringFixed(2),
	}
}
