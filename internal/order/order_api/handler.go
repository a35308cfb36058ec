package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"
	"ms-checkout/internal/order"
	"ms-checkout/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

const maxCheckoutBody = 1 << 20

// OrderService is satisfied by *order.OrderService.
type OrderService interface {
	Checkout(ctx context.Context, userID string, req models.CheckoutRequest) (*models.CheckoutResponse, error)
	GetOrderStatus(ctx context.Context, orderNumber string) (*models.OrderStatusResponse, error)
}

type Handler struct {
	OrderService OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService OrderService, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Logger:       log,
	}
}

// Options configures the caller-facing router.
type Options struct {
	Identity       func(http.Handler) http.Handler
	AllowedOrigins []string
	// Webhook is mounted at /api/payment when set.
	Webhook http.Handler
}

func NewRouter(h *Handler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(h.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	if opts.Webhook != nil {
		r.Mount("/api/payment", opts.Webhook)
	}

	r.Group(func(r chi.Router) {
		if opts.Identity != nil {
			r.Use(opts.Identity)
		}
		r.Post("/api/checkout", h.Checkout)
		r.Get("/api/order/{orderNumber}", h.GetOrder)
	})
	return r
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckoutBody)).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Checkout: failed to decode request: %v", err))
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	userID := auth.UserID(r.Context())
	resp, err := h.OrderService.Checkout(r.Context(), userID, req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.Logger.LogOrder("CHECKOUT", resp.OrderNumber, fmt.Sprintf("redirect issued (zero total: %t)", resp.ZeroTotal))
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Checkout created", resp))
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var validation *order.ValidationError
	var processor *order.PaymentProcessorError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid checkout request", validation.Error()))
	case errors.As(err, &processor):
		h.Logger.Error("API", fmt.Sprintf("Checkout: payment processor error: %v", err))
		writeJSON(w, http.StatusBadGateway, utils.ProcessorErrorResponse(processor.Message, "payment processor error", processor.Code))
	default:
		h.Logger.Error("API", fmt.Sprintf("Checkout: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Checkout failed", "internal error"))
	}
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	status, err := h.OrderService.GetOrderStatus(r.Context(), orderNumber)
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", orderNumber))
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder %s: %v", orderNumber, err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load order", "internal error"))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order status", status))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.status), time.Since(start).String())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
