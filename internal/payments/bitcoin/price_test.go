package bitcoin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bettabuckz/internal/payments"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient() *payments.Client {
	return payments.NewClient(payments.ClientConfig{
		Timeout:    time.Second,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})
}

func TestPriceFeedCachesWithinTTL(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":30000.5}}`))
	}))
	defer server.Close()

	feed := NewPriceFeed(fastClient(), server.URL, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed.now = func() time.Time { return now }

	price, err := feed.BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("30000.5")))

	_, err = feed.BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	_, err = feed.BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPriceFeedRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":25000}}`))
	}))
	defer server.Close()

	price, err := NewPriceFeed(fastClient(), server.URL, time.Minute).BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "25000", price.String())
	assert.Equal(t, int32(2), hits.Load())
}

func TestPriceFeedRejectsMissingPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2000}}`))
	}))
	defer server.Close()

	_, err := NewPriceFeed(fastClient(), server.URL, time.Minute).BTCPriceUSD(context.Background())
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestPriceFeedDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewPriceFeed(fastClient(), server.URL, time.Minute).BTCPriceUSD(context.Background())
	var statusErr *payments.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}
