package order

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"ms-checkout/internal/models"
)

var eventDateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseCart turns request items into typed cart lines. Every line is checked
// against the rules of its own kind.
func ParseCart(items []models.CheckoutItem) ([]models.CartLine, error) {
	if len(items) == 0 {
		return nil, invalid("items", "cart is empty")
	}

	cart := make([]models.CartLine, 0, len(items))
	for i, item := range items {
		line, err := parseLine(i, item)
		if err != nil {
			return nil, err
		}
		cart = append(cart, line)
	}
	return cart, nil
}

func parseLine(i int, item models.CheckoutItem) (models.CartLine, error) {
	field := fmt.Sprintf("items[%d]", i)

	if strings.TrimSpace(item.Name) == "" {
		return nil, invalid(field+".name", "is required")
	}
	if item.Quantity <= 0 {
		return nil, invalid(field+".quantity", "must be greater than 0")
	}
	if item.Price.IsNegative() {
		return nil, invalid(field+".price", "must not be negative")
	}

	base := models.LineBase{
		ProductID: item.ID,
		Name:      strings.TrimSpace(item.Name),
		Price:     item.Price.Round(2),
		Quantity:  item.Quantity,
	}

	switch models.ItemType(strings.ToLower(item.Type)) {
	case models.ItemWine:
		if strings.TrimSpace(item.Winery) == "" {
			return nil, invalid(field+".winery", "is required for wine")
		}
		return models.WineLine{LineBase: base, Winery: item.Winery, Vintage: item.Vintage, Size: item.Size}, nil
	case models.ItemEvent:
		if strings.TrimSpace(item.EventSlug) == "" {
			return nil, invalid(field+".event_slug", "is required for events")
		}
		date, err := parseEventDate(item.EventDate)
		if err != nil {
			return nil, invalid(field+".event_date", "%v", err)
		}
		return models.EventLine{LineBase: base, Slug: item.EventSlug, Date: date}, nil
	case models.ItemDivers:
		return models.DiversLine{LineBase: base}, nil
	case models.ItemGiftCard:
		if item.RecipientEmail != "" {
			if _, err := mail.ParseAddress(item.RecipientEmail); err != nil {
				return nil, invalid(field+".recipient_email", "is not a valid email address")
			}
		}
		return models.GiftCardLine{LineBase: base, RecipientEmail: item.RecipientEmail}, nil
	default:
		return nil, invalid(field+".type", "unknown item type %q", item.Type)
	}
}

func parseEventDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// checkoutOptions are the normalised non-cart parts of a checkout request.
type checkoutOptions struct {
	delivery models.DeliveryMethod
	shipping models.ShippingMethod
	payment  string
}

func validateRequest(req models.CheckoutRequest) (checkoutOptions, error) {
	var opts checkoutOptions

	switch models.DeliveryMethod(strings.ToUpper(req.DeliveryMethod)) {
	case "", models.DeliveryShipping:
		opts.delivery = models.DeliveryShipping
	case models.DeliveryPickup:
		opts.delivery = models.DeliveryPickup
	default:
		return opts, invalid("delivery_method", "must be SHIPPING or PICKUP")
	}

	switch models.ShippingMethod(strings.ToUpper(req.ShippingMethod)) {
	case "", models.ShippingStandard:
		opts.shipping = models.ShippingStandard
	case models.ShippingExpress:
		opts.shipping = models.ShippingExpress
	default:
		return opts, invalid("shipping_method", "must be STANDARD or EXPRESS")
	}

	opts.payment = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if _, err := paymentMethodTypes(opts.payment); err != nil {
		return opts, err
	}

	if strings.TrimSpace(req.Customer.Email) == "" {
		return opts, invalid("customer.email", "is required")
	}
	if _, err := mail.ParseAddress(req.Customer.Email); err != nil {
		return opts, invalid("customer.email", "is not a valid email address")
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return opts, invalid("customer.name", "is required")
	}

	if opts.delivery == models.DeliveryShipping {
		addr := req.ShippingAddress
		if addr.IsEmpty() {
			return opts, invalid("shipping_address", "is required for shipping")
		}
		if addr.Line1 == "" || addr.PostalCode == "" || addr.City == "" {
			return opts, invalid("shipping_address", "line1, postal_code and city are required")
		}
	}
	return opts, nil
}
