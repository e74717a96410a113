package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/config"
	ierr "github.com/subcycle/subcycle/internal/errors"
	"github.com/subcycle/subcycle/internal/httpclient"
	"github.com/subcycle/subcycle/internal/logger"
)

// ChargeRequest describes a single collection attempt against a customer's
// stored payment method.
type ChargeRequest struct {
	CustomerID     string          `json:"customer_id"`
	SubscriptionID string          `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	// IdempotencyKey dedupes retried submissions on the processor side
	IdempotencyKey string `json:"idempotency_key"`
}

// ChargeResult is the processor's answer for a successful charge.
type ChargeResult struct {
	GatewayRef string `json:"gateway_ref"`
}

// Client is the payment processor boundary. A single charge call is bounded
// by the configured timeout; a timed-out charge is a failed charge and is
// never retried synchronously.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type client struct {
	http   httpclient.Client
	cfg    config.GatewayConfig
	logger *logger.Logger
}

// NewClient builds the HTTP gateway client from configuration.
func NewClient(cfg *config.Configuration, logger *logger.Logger) Client {
	return &client{
		http:   httpclient.NewNoRetryClient(cfg.Gateway.Timeout),
		cfg:    cfg.Gateway,
		logger: logger,
	}
}

func (c *client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to encode charge request").
			Mark(ierr.ErrSystem)
	}

	resp, err := c.http.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v1/charges",
		Headers: map[string]string{
			"Authorization":   "Bearer " + c.cfg.APIKey,
			"Idempotency-Key": req.IdempotencyKey,
		},
		Body: body,
	})
	if err != nil {
		// Transport failure or timeout: the charge did not demonstrably
		// succeed, treat it as failed.
		return nil, ierr.WithError(err).
			WithHint("Payment could not be collected").
			Mark(ierr.ErrPaymentFailed)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warnw("gateway declined charge",
			"customer_id", req.CustomerID,
			"subscription_id", req.SubscriptionID,
			"status_code", resp.StatusCode,
		)
		return nil, ierr.NewError("charge declined").
			WithHint("Payment was declined by the processor").
			WithReportableDetails(map[string]any{
				"status_code": resp.StatusCode,
			}).
			Mark(ierr.ErrPaymentFailed)
	}

	var result ChargeResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to decode charge response").
			Mark(ierr.ErrHTTPClient)
	}
	return &result, nil
}
