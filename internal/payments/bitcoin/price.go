package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bettabuckz/internal/payments"

	"github.com/shopspring/decimal"
)

var ErrPriceUnavailable = errors.New("bitcoin price unavailable")

// PriceFeed reads the BTC/USD spot price from a CoinGecko-compatible endpoint
// and caches it for ttl.
type PriceFeed struct {
	client *payments.Client
	url    string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	price     decimal.Decimal
	fetchedAt time.Time
}

func NewPriceFeed(client *payments.Client, url string, ttl time.Duration) *PriceFeed {
	return &PriceFeed{client: client, url: url, ttl: ttl, now: time.Now}
}

func (f *PriceFeed) BTCPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.price.IsPositive() && f.now().Sub(f.fetchedAt) < f.ttl {
		return f.price, nil
	}

	var body map[string]map[string]decimal.Decimal
	if err := f.client.DoJSON(ctx, http.MethodGet, f.url, nil, nil, &body); err != nil {
		return decimal.Zero, fmt.Errorf("fetch bitcoin price: %w", err)
	}
	price := body["bitcoin"]["usd"]
	if !price.IsPositive() {
		return decimal.Zero, ErrPriceUnavailable
	}
	f.price = price
	f.fetchedAt = f.now()
	return price, nil
}
