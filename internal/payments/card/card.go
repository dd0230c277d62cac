package card

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bettabuckz/internal/logging"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid stripe signature")
	ErrInvalidAmount    = errors.New("invalid payment intent amount")
)

const (
	EventSucceeded = "payment_intent.succeeded"
	EventFailed    = "payment_intent.payment_failed"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Logger        logging.Logger
}

type Client struct {
	webhookSecret string
	logger        logging.Logger
	createIntent  func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
		createIntent:  paymentintent.New,
	}
}

type IntentRequest struct {
	UserID         string
	PaymentID      string
	PackageID      string
	AmountCents    int64
	Currency       string
	Methods        []string
	IdempotencyKey string
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// CreatePaymentIntent opens a Stripe payment intent. Nothing is credited
// until the succeeded webhook arrives.
func (c *Client) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.AmountCents <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	methods := req.Methods
	if len(methods) == 0 {
		methods = []string{"card"}
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice(methods),
		Metadata: map[string]string{
			"user_id":    req.UserID,
			"payment_id": req.PaymentID,
			"package_id": req.PackageID,
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := c.createIntent(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	c.logger.WithFields(logging.Fields{
		"payment_intent": pi.ID,
		"payment_id":     req.PaymentID,
		"amount":         pi.Amount,
	}).Info("created stripe payment intent")
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}

type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	PaymentID       string
	UserID          string
	Amount          int64
	FailureMessage  string
}

// ParseWebhook verifies the Stripe-Signature header and extracts the payment
// intent carried by payment_intent.* events.
func (c *Client) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	parsed := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(parsed.Type, "payment_intent.") || event.Data == nil {
		return parsed, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	parsed.PaymentIntentID = pi.ID
	parsed.Amount = pi.Amount
	parsed.PaymentID = pi.Metadata["payment_id"]
	parsed.UserID = pi.Metadata["user_id"]
	if pi.LastPaymentError != nil {
		parsed.FailureMessage = pi.LastPaymentError.Msg
	}
	return parsed, nil
}
