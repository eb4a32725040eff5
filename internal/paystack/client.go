package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/config"
)

// Client talks to the Paystack REST API
type Client struct {
	secretKey  string
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	maxElapsed time.Duration
	log        *zap.Logger

	// first retry delay; the exponential schedule grows from here
	initialInterval time.Duration
}

func NewClient(cfg config.Paystack, log *zap.Logger) *Client {
	return &Client{
		secretKey:       cfg.SecretKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            &http.Client{},
		timeout:         cfg.Timeout,
		maxElapsed:      cfg.MaxElapsed,
		log:             log,
		initialInterval: backoff.DefaultInitialInterval,
	}
}

type CheckoutRequest struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Verification is the gateway's view of a charge
type Verification struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paid_at"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
	IPAddress       string `json:"ip_address"`
}

const StatusSuccess = "success"

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCheckout creates a hosted checkout session for req.Amount (minor units)
func (c *Client) InitializeCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	var out Checkout
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	if out.AuthorizationURL == "" {
		return nil, &GatewayError{Op: "initialize", Message: "no authorization url returned"}
	}
	return &out, nil
}

// VerifyTransaction fetches the authoritative status of reference
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	var out Verification
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, "verify", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("paystack %s: encode request: %w", op, err)
		}
	}

	attempt := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &GatewayError{Op: op, Err: err, temporary: true}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err, temporary: true}
		}

		var env envelope
		_ = json.Unmarshal(raw, &env)

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: env.Message, temporary: true}
		case resp.StatusCode >= 400:
			return backoff.Permanent(&GatewayError{Op: op, StatusCode: resp.StatusCode, Message: env.Message})
		case !env.Status:
			return backoff.Permanent(&GatewayError{Op: op, StatusCode: resp.StatusCode, Message: env.Message})
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return backoff.Permanent(&GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err})
		}
		return nil
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.initialInterval),
		backoff.WithMaxElapsedTime(c.maxElapsed),
	)
	err := backoff.RetryNotify(attempt, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.log.Warn("paystack call failed, retrying",
			zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
	if err == nil {
		return nil
	}

	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	return &GatewayError{Op: op, Err: err, temporary: true}
}
