package cashapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bettabuckz/internal/payments"
)

var ErrInvalidSignature = errors.New("invalid cash app signature")

const SignatureHeader = "X-Cash-Signature"

const (
	EventCompleted = "payment.completed"
	EventFailed    = "payment.failed"
)

type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

type Client struct {
	http          *payments.Client
	baseURL       string
	apiKey        string
	webhookSecret []byte
}

func NewClient(client *payments.Client, cfg Config) *Client {
	return &Client{
		http:          client,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: []byte(cfg.WebhookSecret),
	}
}

type ChargeRequest struct {
	PaymentID   string
	UserID      string
	AmountCents int64
	Description string
}

type Charge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCharge asks Cash App to collect AmountCents. The payment id doubles
// as the provider idempotency key.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	body := map[string]any{
		"idempotency_key": req.PaymentID,
		"reference_id":    req.PaymentID,
		"amount":          req.AmountCents,
		"currency":        "USD",
		"description":     req.Description,
		"metadata":        map[string]string{"user_id": req.UserID},
	}
	var resp struct {
		Payment Charge `json:"payment"`
	}
	headers := map[string]string{"Authorization": "Client " + c.apiKey}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/payments", headers, body, &resp); err != nil {
		return Charge{}, fmt.Errorf("create cash app payment: %w", err)
	}
	if resp.Payment.ID == "" {
		return Charge{}, errors.New("create cash app payment: missing payment id")
	}
	return resp.Payment, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body.
func (c *Client) VerifySignature(body []byte, signature string) error {
	if len(c.webhookSecret) == 0 || signature == "" {
		return ErrInvalidSignature
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(given, Sign(c.webhookSecret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

type WebhookEvent struct {
	ID                string
	Type              string
	ProviderReference string
	PaymentID         string
	AmountCents       int64
}

// ParseWebhook verifies the signature before decoding anything.
func (c *Client) ParseWebhook(body []byte, signature string) (WebhookEvent, error) {
	if err := c.VerifySignature(body, signature); err != nil {
		return WebhookEvent{}, err
	}
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID          string `json:"id"`
			ReferenceID string `json:"reference_id"`
			Amount      int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode cash app event: %w", err)
	}
	return WebhookEvent{
		ID:                raw.ID,
		Type:              raw.Type,
		ProviderReference: raw.Data.ID,
		PaymentID:         raw.Data.ReferenceID,
		AmountCents:       raw.Data.Amount,
	}, nil
}
