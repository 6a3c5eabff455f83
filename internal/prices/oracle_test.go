package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFeedSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC", "BTCUSDT"},
		{"btc", "BTCUSDT"},
		{"ETH-PERP", "ETHUSDT"},
		{"SATS", "1000SATSUSDT"},
		{"SHIB", "SHIBUSDT"},
		{"PEPE-PERP", "PEPEUSDT"},
		{"NEWCOIN", "NEWCOINUSDT"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ToFeedSymbol(tt.in), "symbol %s", tt.in)
	}
}

// fakeFeed serves the ticker endpoints from an in-memory price table and
// counts requests so tests can assert on cache hits.
type fakeFeed struct {
	mu       sync.Mutex
	prices   map[string]float64
	requests int
	fail     bool
}

func (f *fakeFeed) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeFeed) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeFeed) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++

		if f.fail {
			http.Error(w, `{"msg":"feed down"}`, http.StatusInternalServerError)
			return
		}

		if symbol := r.URL.Query().Get("symbol"); symbol != "" {
			price, ok := f.prices[symbol]
			if !ok {
				http.Error(w, `{"msg":"unknown symbol"}`, http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"symbol": symbol,
				"price":  fmt.Sprintf("%f", price),
			})
			return
		}

		var symbols []string
		raw, _ := url.QueryUnescape(r.URL.Query().Get("symbols"))
		if err := json.Unmarshal([]byte(raw), &symbols); err != nil {
			http.Error(w, `{"msg":"bad symbols"}`, http.StatusBadRequest)
			return
		}

		var payload []map[string]string
		for _, symbol := range symbols {
			if price, ok := f.prices[symbol]; ok {
				payload = append(payload, map[string]string{
					"symbol": symbol,
					"price":  fmt.Sprintf("%f", price),
				})
			}
		}
		json.NewEncoder(w).Encode(payload)
	}
}

func newFeedOracle(t *testing.T, prices map[string]float64) (*Oracle, *fakeFeed) {
	t.Helper()
	feed := &fakeFeed{prices: prices}
	server := httptest.NewServer(feed.handler())
	t.Cleanup(server.Close)
	return NewOracle(server.URL), feed
}

func TestGetPriceCachesWithinTTL(t *testing.T) {
	oracle, feed := newFeedOracle(t, map[string]float64{"BTCUSDT": 60000})

	price, err := oracle.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 60000.0, price)
	assert.Equal(t, 1, feed.requestCount())

	// Second read within the TTL is served from cache.
	price, err = oracle.GetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 60000.0, price)
	assert.Equal(t, 1, feed.requestCount())
}

func TestGetPriceFallsBackToCacheOnFeedFailure(t *testing.T) {
	oracle, feed := newFeedOracle(t, map[string]float64{"ETHUSDT": 3000})

	price, err := oracle.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, price)

	feed.setFail(true)
	time.Sleep(cacheTTL + 50*time.Millisecond)

	// Feed is down but the stale cached value is still served.
	price, err = oracle.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, price)
}

func TestGetPriceUnavailableWithoutCache(t *testing.T) {
	oracle, feed := newFeedOracle(t, map[string]float64{})
	feed.setFail(true)

	_, err := oracle.GetPrice(context.Background(), "BTC")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestGetPricesBatchesAndOmitsUnknownSymbols(t *testing.T) {
	oracle, feed := newFeedOracle(t, map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
	})

	quotes, err := oracle.GetPrices(context.Background(), []string{"BTC", "ETH", "NOPE"})
	require.NoError(t, err)

	assert.Equal(t, 60000.0, quotes["BTC"])
	assert.Equal(t, 3000.0, quotes["ETH"])
	_, ok := quotes["NOPE"]
	assert.False(t, ok, "symbol the feed cannot serve must be absent")
	assert.Equal(t, 1, feed.requestCount(), "uncached symbols batch into one round-trip")
}

func TestGetPricesServesCachedValuesWhenFeedDown(t *testing.T) {
	oracle, feed := newFeedOracle(t, map[string]float64{
		"BTCUSDT": 60000,
		"ETHUSDT": 3000,
	})

	_, err := oracle.GetPrices(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)

	feed.setFail(true)
	time.Sleep(cacheTTL + 50*time.Millisecond)

	quotes, err := oracle.GetPrices(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.Equal(t, 60000.0, quotes["BTC"])
	assert.Equal(t, 3000.0, quotes["ETH"])
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	oracle, _ := newFeedOracle(t, map[string]float64{"BTCUSDT": 60000})

	cancel := oracle.Subscribe([]string{"BTC"}, func(map[string]float64) {})
	cancel()
	// A second cancel must not panic.
	cancel()
}
