package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
)

const (
	SignatureHeader    = "x-paystack-signature"
	EventChargeSuccess = "charge.success"
)

var ErrBadSignature = errors.New("invalid webhook signature")

// WebhookEvent is the subset of a Paystack event body the wallet cares about
type WebhookEvent struct {
	Event string     `json:"event"`
	Data  ChargeData `json:"data"`
}

type ChargeData struct {
	ID              int64          `json:"id"`
	Reference       string         `json:"reference"`
	Status          string         `json:"status"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	PaidAt          string         `json:"paid_at"`
	Channel         string         `json:"channel"`
	GatewayResponse string         `json:"gateway_response"`
	IPAddress       string         `json:"ip_address"`
	Metadata        map[string]any `json:"metadata"`
}

// Sign returns the hex HMAC-SHA512 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the signature of the raw body
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	want := Sign(secret, body)
	return hmac.Equal([]byte(want), []byte(header))
}

// ParseEvent verifies and decodes a webhook delivery
func ParseEvent(secret string, body []byte, signature string) (*WebhookEvent, error) {
	if !VerifySignature(secret, body, signature) {
		return nil, ErrBadSignature
	}
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
