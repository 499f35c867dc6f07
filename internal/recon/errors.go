package recon

import (
	"fmt"
	"net/http"
)

// WebhookError carries the HTTP status and public message for a failed
// notification, so the handler never leaks internals to the gateway.
type WebhookError struct {
	Category    string // "validation", "authentication", "not_found", "processing"
	StatusCode  int
	PublicError string
	Err         error
}

func (e *WebhookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook %s error: %s: %v", e.Category, e.PublicError, e.Err)
	}
	return fmt.Sprintf("webhook %s error: %s", e.Category, e.PublicError)
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

func errIncompletePayload() *WebhookError {
	return &WebhookError{
		Category:    "validation",
		StatusCode:  http.StatusBadRequest,
		PublicError: "notification payload is missing required fields",
	}
}

func errInvalidSignature() *WebhookError {
	return &WebhookError{
		Category:    "authentication",
		StatusCode:  http.StatusUnauthorized,
		PublicError: "notification signature verification failed",
	}
}

func errOrderNotFound(orderNumber string) *WebhookError {
	return &WebhookError{
		Category:    "not_found",
		StatusCode:  http.StatusNotFound,
		PublicError: fmt.Sprintf("no order with number %s", orderNumber),
	}
}

func errProcessing(err error) *WebhookError {
	return &WebhookError{
		Category:    "processing",
		StatusCode:  http.StatusInternalServerError,
		PublicError: "notification could not be processed",
		Err:         err,
	}
}
