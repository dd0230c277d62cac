package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bettabuckz/internal/payments"

	"github.com/shopspring/decimal"
)

var ErrSenderNotConfigured = errors.New("bitcoin wallet service not configured")

// Sender broadcasts outbound payments through the custody wallet service.
type Sender struct {
	client  *payments.Client
	baseURL string
	apiKey  string
}

func NewSender(client *payments.Client, baseURL, apiKey string) *Sender {
	return &Sender{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Send pays amountBTC to address and returns the transaction hash. reference
// is passed as the idempotency key so a retried call cannot pay twice.
func (s *Sender) Send(ctx context.Context, reference, address string, amountBTC decimal.Decimal) (string, error) {
	if s.baseURL == "" {
		return "", ErrSenderNotConfigured
	}
	req := struct {
		Address   string `json:"address"`
		AmountBTC string `json:"amount_btc"`
	}{Address: address, AmountBTC: amountBTC.StringFixed(8)}
	var resp struct {
		TxHash string `json:"tx_hash"`
	}
	headers := map[string]string{
		"Authorization":   "Bearer " + s.apiKey,
		"Idempotency-Key": reference,
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/send", headers, req, &resp); err != nil {
		return "", fmt.Errorf("wallet send: %w", err)
	}
	if resp.TxHash == "" {
		return "", errors.New("wallet send: empty transaction hash")
	}
	return resp.TxHash, nil
}
