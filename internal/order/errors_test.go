package order_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ms-checkout/internal/order"

	"github.com/stretchr/testify/assert"
)

func TestClassifyWebhookError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{"signature", fmt.Errorf("%w: bad header", order.ErrSignatureVerification), http.StatusBadRequest, "validation"},
		{"in progress", fmt.Errorf("order 1: %w", order.ErrReconciliationInProgress), http.StatusConflict, "conflict"},
		{"ledger down", errors.New("connection refused"), http.StatusInternalServerError, "processing"},
		{"already classified", &order.WebhookError{Category: "validation", StatusCode: http.StatusBadRequest, PublicError: "Invalid event data"}, http.StatusBadRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			we := order.ClassifyWebhookError(tt.err)
			assert.Equal(t, tt.status, we.StatusCode)
			assert.Equal(t, tt.category, we.Category)
			assert.NotEmpty(t, we.PublicError+we.InternalError)
		})
	}
}

func TestPaymentProcessorErrorUnwraps(t *testing.T) {
	cause := errors.New("api down")
	err := &order.PaymentProcessorError{Message: "Failed to create checkout session", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to create checkout session: api down", err.Error())
}
