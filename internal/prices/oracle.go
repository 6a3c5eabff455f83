package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrPriceUnavailable is returned when neither a fresh nor a cached price
// exists for a symbol.
var ErrPriceUnavailable = errors.New("price unavailable")

const (
	// DefaultBaseURL is the public ticker API the oracle wraps.
	DefaultBaseURL = "https://api.binance.com/api/v3"

	cacheTTL     = time.Second
	pollInterval = 2 * time.Second
)

type cachedPrice struct {
	price     float64
	observedAt time.Time
}

// Oracle fetches and caches mark prices for traded assets. Cache entries
// expire after a short TTL and are refreshed lazily per symbol; a failed
// fetch falls back to the last cached value so one missing quote never
// blocks valuation of unrelated assets.
type Oracle struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

// NewOracle creates an oracle against the given ticker API base URL.
// An empty baseURL selects the default public endpoint.
func NewOracle(baseURL string) *Oracle {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Oracle{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		cache:      make(map[string]cachedPrice),
	}
}

type tickerPayload struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice returns the current price for a single symbol, serving from cache
// when fresh enough.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := o.cachedFresh(symbol); ok {
		return price, nil
	}

	feedSymbol := ToFeedSymbol(symbol)
	endpoint := fmt.Sprintf("%s/ticker/price?symbol=%s", o.baseURL, url.QueryEscape(feedSymbol))

	body, err := o.fetch(ctx, endpoint)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("price fetch failed, trying cache")
		return o.cachedOrUnavailable(symbol)
	}

	var ticker tickerPayload
	if err := json.Unmarshal(body, &ticker); err != nil {
		return o.cachedOrUnavailable(symbol)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return o.cachedOrUnavailable(symbol)
	}

	o.store(symbol, price)
	return price, nil
}

// GetPrices returns current prices for multiple symbols, batching uncached
// symbols into a single round-trip. Symbols the feed cannot serve fall back
// to their cached values; symbols with neither are simply absent from the
// returned map.
func (o *Oracle) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	result := make(map[string]float64, len(symbols))

	var uncached []string
	for _, symbol := range symbols {
		if price, ok := o.cachedFresh(symbol); ok {
			result[symbol] = price
		} else {
			uncached = append(uncached, symbol)
		}
	}

	if len(uncached) == 0 {
		return result, nil
	}

	feedSymbols := make([]string, len(uncached))
	for i, symbol := range uncached {
		feedSymbols[i] = ToFeedSymbol(symbol)
	}
	encoded, err := json.Marshal(feedSymbols)
	if err != nil {
		return result, err
	}
	endpoint := fmt.Sprintf("%s/ticker/price?symbols=%s", o.baseURL, url.QueryEscape(string(encoded)))

	body, fetchErr := o.fetch(ctx, endpoint)
	if fetchErr != nil {
		log.Warn().Err(fetchErr).Strs("symbols", uncached).Msg("batch price fetch failed, serving cached values")
		for _, symbol := range uncached {
			if price, ok := o.cachedAny(symbol); ok {
				result[symbol] = price
			}
		}
		return result, nil
	}

	var tickers []tickerPayload
	if err := json.Unmarshal(body, &tickers); err != nil {
		return result, fmt.Errorf("failed to decode ticker response: %w", err)
	}

	byFeedSymbol := make(map[string]float64, len(tickers))
	for _, ticker := range tickers {
		price, err := strconv.ParseFloat(ticker.Price, 64)
		if err != nil {
			continue
		}
		byFeedSymbol[ticker.Symbol] = price
	}

	for i, symbol := range uncached {
		if price, ok := byFeedSymbol[feedSymbols[i]]; ok {
			result[symbol] = price
			o.store(symbol, price)
		} else if price, ok := o.cachedAny(symbol); ok {
			result[symbol] = price
		}
	}

	return result, nil
}

// Subscribe polls prices for the given symbols at a fixed interval and
// invokes the callback with each batch. The returned cancel function stops
// the poll and is safe to call more than once.
func (o *Oracle) Subscribe(symbols []string, callback func(map[string]float64)) func() {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), pollInterval)
				prices, err := o.GetPrices(ctx, symbols)
				cancel()
				if err != nil {
					log.Warn().Err(err).Msg("price subscription tick failed")
					continue
				}
				callback(prices)
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

func (o *Oracle) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("price feed returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

func (o *Oracle) cachedFresh(symbol string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.cache[symbol]
	if !ok || time.Since(entry.observedAt) >= cacheTTL {
		return 0, false
	}
	return entry.price, true
}

func (o *Oracle) cachedAny(symbol string) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.cache[symbol]
	return entry.price, ok
}

func (o *Oracle) cachedOrUnavailable(symbol string) (float64, error) {
	if price, ok := o.cachedAny(symbol); ok {
		return price, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
}

func (o *Oracle) store(symbol string, price float64) {
	o.mu.Lock()
	o.cache[symbol] = cachedPrice{price: price, observedAt: time.Now()}
	o.mu.Unlock()
}
