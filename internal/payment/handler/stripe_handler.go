package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-checkout/internal/logger"
	"ms-checkout/internal/order"
	"ms-checkout/internal/utils"

	"github.com/gin-gonic/gin"
)

// Stripe rejects webhook payloads above this size.
const maxWebhookBody = 65536

const SignatureHeader = "Stripe-Signature"

// WebhookReconciler is satisfied by *order.Reconciler.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type StripeHandler struct {
	reconciler WebhookReconciler
	logger     *logger.Logger
}

func NewStripeHandler(reconciler WebhookReconciler, logger *logger.Logger) *StripeHandler {
	return &StripeHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook under /api/payment.
func (h *StripeHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/payment/webhook", h.Webhook)
}

// NewRouter builds a standalone gin engine serving the webhook route. It is mounted
// into the chi router in main.
func NewRouter(h *StripeHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

// Webhook verifies and applies a Stripe event. 4xx answers stop Stripe retries,
// 5xx answers make Stripe deliver the event again.
func (h *StripeHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, utils.ErrorResponse("Payload too large", err.Error()))
			return
		}
		h.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook body: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		h.logger.LogSecurity("WEBHOOK_UNSIGNED", fmt.Sprintf("Webhook without %s header from %s", SignatureHeader, c.ClientIP()))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Webhook signature verification failed", "missing signature header"))
		return
	}

	if err := h.reconciler.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		webhookErr := order.ClassifyWebhookError(err)
		if webhookErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("WEBHOOK", fmt.Sprintf("Webhook processing failed: %s", webhookErr.InternalError))
		} else {
			h.logger.Warn("WEBHOOK", fmt.Sprintf("Webhook rejected (%s): %s", webhookErr.Category, webhookErr.InternalError))
		}
		c.JSON(webhookErr.StatusCode, utils.ErrorResponse(webhookErr.PublicError, webhookErr.Category))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Webhook processed", gin.H{"received": true}))
}
