package prices

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/rs/zerolog"
)

var _ Client = (*CoinMarketCap)(nil)

func TestNearest(t *testing.T) {
	quotes := []Quote{
		{Timestamp: 100},
		{Timestamp: 400},
		{Timestamp: 250},
	}

	q, ok := Nearest(quotes, 260)
	assert.True(t, ok)
	assert.Equal(t, int64(250), q.Timestamp)

	q, ok = Nearest(quotes, 90)
	assert.True(t, ok)
	assert.Equal(t, int64(100), q.Timestamp)

	_, ok = Nearest(nil, 100)
	assert.False(t, ok)
}

func testCMC(t *testing.T, handler http.Handler) *CoinMarketCap {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewCoinMarketCap("cmc-key", zerolog.Nop(), WithCoinMarketCapBaseURL(srv.URL))
}

func cmcHistoricalBody(id int64, quotes ...map[string]any) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"TAO": []map[string]any{
				{"id": id, "quotes": quotes},
			},
		},
	}
}

func cmcQuote(ts string, price string) map[string]any {
	return map[string]any{
		"timestamp": ts,
		"quote":     map[string]any{"USD": map[string]any{"price": price}},
	}
}

func TestCoinMarketCapPriceAt(t *testing.T) {
	c := testCMC(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/cryptocurrency/quotes/historical", r.URL.Path)
		assert.Equal(t, "cmc-key", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "TAO", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))

		_ = json.NewEncoder(w).Encode(cmcHistoricalBody(22974, cmcQuote("2025-11-03T10:15:00Z", "421.5")))
	}))

	price, err := c.PriceAt(context.Background(), "TAO", 1762164900)
	assert.NoError(t, err)
	assert.Equal(t, "421.5", price.String())
}

func TestCoinMarketCapFiltersWrongAsset(t *testing.T) {
	c := testCMC(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Another asset also listed as TAO must not satisfy the lookup.
		_ = json.NewEncoder(w).Encode(cmcHistoricalBody(999, cmcQuote("2025-11-03T10:15:00Z", "1.0")))
	}))

	_, err := c.PriceAt(context.Background(), "TAO", 1762164900)

	var notAvailable *NotAvailableError
	assert.True(t, errors.As(err, &notAvailable))
	assert.Equal(t, "TAO", notAvailable.Symbol)
}

func TestCoinMarketCapPricesInRange(t *testing.T) {
	c := testCMC(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEqual(t, "", r.URL.Query().Get("time_start"))
		assert.NotEqual(t, "", r.URL.Query().Get("time_end"))

		_ = json.NewEncoder(w).Encode(cmcHistoricalBody(22974,
			cmcQuote("2025-11-03T10:00:00Z", "420"),
			cmcQuote("2025-11-03T10:05:00Z", "422"),
		))
	}))

	quotes, err := c.PricesInRange(context.Background(), "TAO", 1762164000, 1762164300)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(quotes))
	assert.Equal(t, "420", quotes[0].Price.String())
	assert.Equal(t, "422", quotes[1].Price.String())

	_, err = c.PricesInRange(context.Background(), "TAO", 10, 5)
	assert.Error(t, err)
}
