package models

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderCompleted OrderStatus = "COMPLETED"
)

type DeliveryMethod string

const (
	DeliveryShipping DeliveryMethod = "SHIPPING"
	DeliveryPickup   DeliveryMethod = "PICKUP"
)

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "STANDARD"
	ShippingExpress  ShippingMethod = "EXPRESS"
)

// Payment methods offered at checkout. An empty method lets the customer choose.
const (
	PaymentMethodCard  = "card"
	PaymentMethodTwint = "twint"
)
