package order

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSignatureVerification    = errors.New("webhook signature verification failed")
	ErrReconciliationInProgress = errors.New("order reconciliation in progress")
)

// ValidationError rejects a checkout request before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PaymentProcessorError wraps a failed call to the payment processor. Code is the
// processor's own error code when it supplied one.
type PaymentProcessorError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentProcessorError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PaymentProcessorError) Unwrap() error {
	return e.Err
}

// processorCoder is implemented by adapter errors that carry the processor's code.
type processorCoder interface {
	ProcessorCode() string
}

func processorError(message string, err error) *PaymentProcessorError {
	pe := &PaymentProcessorError{Message: message, Err: err}
	var coded processorCoder
	if errors.As(err, &coded) {
		pe.Code = coded.ProcessorCode()
	}
	return pe
}

// WebhookError represents different categories of webhook errors
type WebhookError struct {
	Category      string // "validation", "conflict", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyWebhookError maps a reconciliation failure to the response the processor
// sees. 4xx for requests that will never succeed, 409 and 5xx so it retries.
func ClassifyWebhookError(err error) *WebhookError {
	var we *WebhookError
	if errors.As(err, &we) {
		return we
	}

	switch {
	case errors.Is(err, ErrSignatureVerification):
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	case errors.Is(err, ErrReconciliationInProgress):
		return &WebhookError{
			Category:      "conflict",
			StatusCode:    http.StatusConflict,
			PublicError:   "Order is being reconciled, retry later",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	default:
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	}
}
