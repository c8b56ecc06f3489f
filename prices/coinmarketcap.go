package prices

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/httpx"
)

// bittensorID is CoinMarketCap's asset id for Bittensor. Symbol lookups can
// return several assets named TAO, so results are filtered by id.
const bittensorID = 22974

// CoinMarketCap resolves prices through the CoinMarketCap Pro API using
// 5-minute interval historical quotes.
type CoinMarketCap struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	retry   httpx.Policy
	log     zerolog.Logger
}

// CoinMarketCapOption customizes the client.
type CoinMarketCapOption func(*CoinMarketCap)

// WithCoinMarketCapBaseURL points the client at a different API host.
func WithCoinMarketCapBaseURL(base string) CoinMarketCapOption {
	return func(c *CoinMarketCap) { c.baseURL = base }
}

// NewCoinMarketCap creates a client against the production API.
func NewCoinMarketCap(apiKey string, log zerolog.Logger, opts ...CoinMarketCapOption) *CoinMarketCap {
	c := &CoinMarketCap{
		hc:      &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://pro-api.coinmarketcap.com",
		apiKey:  apiKey,
		retry:   httpx.DefaultPolicy(),
		log:     log.With().Str("client", "coinmarketcap").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CoinMarketCap) Name() string { return "CoinMarketCap" }

type cmcHistoricalResponse struct {
	Data map[string][]struct {
		ID     int64 `json:"id"`
		Quotes []struct {
			Timestamp time.Time `json:"timestamp"`
			Quote     struct {
				USD struct {
					Price decimal.Decimal `json:"price"`
				} `json:"USD"`
			} `json:"quote"`
		} `json:"quotes"`
	} `json:"data"`
}

type cmcLatestResponse struct {
	Data map[string][]struct {
		ID    int64 `json:"id"`
		Quote struct {
			USD struct {
				Price decimal.Decimal `json:"price"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// PriceAt returns the first 5-minute quote starting at ts.
func (c *CoinMarketCap) PriceAt(ctx context.Context, symbol string, ts int64) (decimal.Decimal, error) {
	params := url.Values{
		"symbol":     {symbol},
		"time_start": {time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05")},
		"interval":   {"5m"},
		"count":      {"1"},
	}

	var out cmcHistoricalResponse
	if err := c.get(ctx, "/v2/cryptocurrency/quotes/historical", params, &out); err != nil {
		return decimal.Zero, &NotAvailableError{Symbol: symbol, At: ts, Reason: err.Error()}
	}

	for _, asset := range out.Data[symbol] {
		if asset.ID != bittensorID || len(asset.Quotes) == 0 {
			continue
		}
		price := asset.Quotes[0].Quote.USD.Price
		c.log.Debug().Str("symbol", symbol).Int64("ts", ts).Str("price", price.String()).Msg("historical quote")
		return price, nil
	}

	return decimal.Zero, &NotAvailableError{Symbol: symbol, At: ts, Reason: "no quotes in response"}
}

func (c *CoinMarketCap) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out cmcLatestResponse
	if err := c.get(ctx, "/v2/cryptocurrency/quotes/latest", url.Values{"symbol": {symbol}}, &out); err != nil {
		return decimal.Zero, &NotAvailableError{Symbol: symbol, Reason: err.Error()}
	}

	for _, asset := range out.Data[symbol] {
		if asset.ID == bittensorID {
			return asset.Quote.USD.Price, nil
		}
	}
	return decimal.Zero, &NotAvailableError{Symbol: symbol, Reason: "asset not in response"}
}

// PricesInRange walks the range in 5-minute interval pages. CoinMarketCap
// caps count per request, so the range is fetched in one call sized to the
// span.
func (c *CoinMarketCap) PricesInRange(ctx context.Context, symbol string, start, end int64) ([]Quote, error) {
	if end < start {
		return nil, fmt.Errorf("invalid price range: %d..%d", start, end)
	}

	params := url.Values{
		"symbol":     {symbol},
		"time_start": {time.Unix(start, 0).UTC().Format("2006-01-02T15:04:05")},
		"time_end":   {time.Unix(end, 0).UTC().Format("2006-01-02T15:04:05")},
		"interval":   {"5m"},
	}

	var out cmcHistoricalResponse
	if err := c.get(ctx, "/v2/cryptocurrency/quotes/historical", params, &out); err != nil {
		return nil, err
	}

	var quotes []Quote
	for _, asset := range out.Data[symbol] {
		if asset.ID != bittensorID {
			continue
		}
		for _, q := range asset.Quotes {
			quotes = append(quotes, Quote{Timestamp: q.Timestamp.Unix(), Price: q.Quote.USD.Price})
		}
	}
	return quotes, nil
}

func (c *CoinMarketCap) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.retry.Do(ctx, func() error {
		req, err := httpx.NewJSONRequest(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
		return httpx.DoJSON(c.hc, req, out)
	})
}
