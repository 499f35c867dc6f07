package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"ms-payments/internal/logger"
)

// ErrTransactionNotFound means the gateway has no transaction for the
// order yet. Expected for fresh orders the buyer has not opened the
// payment page for; callers must not treat it as a failure.
var ErrTransactionNotFound = errors.New("gateway: transaction not found")

// ErrGatewayUnavailable wraps timeouts, 5xx responses and malformed
// replies. Retryable by the caller; never causes a state mutation.
var ErrGatewayUnavailable = errors.New("gateway: unavailable")

// TokenRequest is the payload for the gateway's token-creation call.
type TokenRequest struct {
	OrderNumber    string   `json:"order_id"`
	GrossAmount    float64  `json:"gross_amount"`
	CustomerName   string   `json:"customer_name"`
	CustomerEmail  string   `json:"customer_email"`
	CustomerPhone  string   `json:"customer_phone"`
	EnabledMethods []string `json:"enabled_payments"`
	ExpiryDuration int      `json:"expiry_duration"`
	ExpiryUnit     string   `json:"expiry_unit"`
}

type TokenResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type TransactionStatusResponse struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
}

// DefaultPaymentMethods is the fixed allow-list sent on token creation.
var DefaultPaymentMethods = []string{
	"bank_transfer", "gopay", "shopeepay", "qris", "credit_card",
}

type Client struct {
	http          *resty.Client
	serverKey     string
	tokenValidity time.Duration
	logger        *logger.Logger
}

func NewClient(baseURL, serverKey string, timeout, tokenValidity time.Duration, log *logger.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(serverKey, "").
		SetHeader("Accept", "application/json")

	return &Client{
		http:          httpClient,
		serverKey:     serverKey,
		tokenValidity: tokenValidity,
		logger:        log,
	}
}

// CreateToken opens a payment session for the order. The expiry window
// sent to the gateway matches the token validity used locally, so both
// sides agree on when the session dies.
func (c *Client) CreateToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	req.EnabledMethods = DefaultPaymentMethods
	req.ExpiryDuration = int(c.tokenValidity / time.Hour)
	req.ExpiryUnit = "hours"

	var result TokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/payment-tokens")
	if err != nil {
		return nil, fmt.Errorf("%w: token creation for %s: %v", ErrGatewayUnavailable, req.OrderNumber, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("%w: token creation for %s: status %d", ErrGatewayUnavailable, req.OrderNumber, resp.StatusCode())
	}
	if result.Token == "" {
		return nil, fmt.Errorf("%w: token creation for %s: empty token in response", ErrGatewayUnavailable, req.OrderNumber)
	}

	c.logger.LogGateway("TOKEN", req.OrderNumber, "payment session created")
	return &result, nil
}

// TransactionStatus queries the gateway for the current transaction
// status of an order. A 404 maps to ErrTransactionNotFound.
func (c *Client) TransactionStatus(ctx context.Context, orderNumber string) (*TransactionStatusResponse, error) {
	var result TransactionStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/v2/transactions/%s/status", orderNumber))
	if err != nil {
		return nil, fmt.Errorf("%w: status query for %s: %v", ErrGatewayUnavailable, orderNumber, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case resp.StatusCode() != http.StatusOK:
		return nil, fmt.Errorf("%w: status query for %s: status %d", ErrGatewayUnavailable, orderNumber, resp.StatusCode())
	case result.TransactionStatus == "":
		return nil, fmt.Errorf("%w: status query for %s: empty transaction_status", ErrGatewayUnavailable, orderNumber)
	}

	return &result, nil
}
