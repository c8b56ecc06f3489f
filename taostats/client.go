// Package taostats is a client for the taostats.io API, the source of
// chain activity (delegations, transfers, stake balances) and of TAO
// price history. The free tier allows five requests a minute, so every
// call is paced and 429s are retried with backoff.
package taostats

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/httpx"
	"github.com/subtensorlabs/taobooks/prices"
)

const defaultBaseURL = "https://api.taostats.io/api"

// priceBuffer widens point price lookups to tolerate gaps in the price
// history; the closest quote inside the buffer wins.
const priceBuffer = 1800

// Client talks to the taostats API.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	retry   httpx.Policy
	log     zerolog.Logger

	// pacing keeps the request rate under the API quota.
	pace     time.Duration
	mu       sync.Mutex
	lastCall time.Time

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL points the client at a different API root, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithPacing changes the minimum interval between requests.
func WithPacing(d time.Duration) Option {
	return func(c *Client) { c.pace = d }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New creates a client. The API key is required; taostats rejects
// unauthenticated requests.
func New(apiKey string, log zerolog.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("taostats: api key is required, sign up at https://dash.taostats.io/")
	}

	c := &Client{
		hc:      &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		retry: httpx.Policy{
			MaxAttempts: 3,
			BaseDelay:   6 * time.Second,
			Factor:      6,
			MaxDelay:    5 * time.Minute,
		},
		log:  log.With().Str("client", "taostats").Logger(),
		pace: 12 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	return c, nil
}

func (c *Client) Name() string { return "TaoStats API" }

type page[T any] struct {
	Data       []T `json:"data"`
	Pagination struct {
		NextPage *int `json:"next_page"`
	} `json:"pagination"`
}

// fetchAll walks every page of a paginated endpoint.
func fetchAll[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	var all []T
	for pageNum := 1; ; pageNum++ {
		if err := c.waitTurn(ctx); err != nil {
			return nil, err
		}

		params.Set("page", strconv.Itoa(pageNum))

		var out page[T]
		err := c.retry.Do(ctx, func() error {
			req, err := httpx.NewJSONRequest(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", c.apiKey)
			return httpx.DoJSON(c.hc, req, &out)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, out.Data...)
		if out.Pagination.NextPage == nil {
			return all, nil
		}
	}
}

// waitTurn blocks until the pacing interval since the previous request has
// elapsed.
func (c *Client) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	wait := c.pace - time.Since(c.lastCall)
	c.lastCall = time.Now().Add(max(wait, 0))
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return c.sleep(ctx, wait)
}

// GetDelegations returns the delegation events for a nominator/delegate
// pair on one subnet inside [start, end]. When isTransfer is non-nil the
// results are filtered server side to stake transfers (or non-transfers).
func (c *Client) GetDelegations(ctx context.Context, netuid int, delegate, nominator string, start, end int64, isTransfer *bool) ([]DelegationEvent, error) {
	params := url.Values{
		"action":          {"all"},
		"netuid":          {strconv.Itoa(netuid)},
		"delegate":        {delegate},
		"nominator":       {nominator},
		"start_timestamp": {strconv.FormatInt(start, 10)},
		"end_timestamp":   {strconv.FormatInt(end, 10)},
		"per_page":        {"50"},
	}
	if isTransfer != nil {
		params.Set("is_transfer", strconv.FormatBool(*isTransfer))
	}

	items, err := fetchAll[delegationItem](ctx, c, "/delegation/v1", params)
	if err != nil {
		return nil, fmt.Errorf("taostats delegations: %w", err)
	}

	events := make([]DelegationEvent, len(items))
	for i, item := range items {
		events[i] = item.event()
	}
	c.log.Debug().Int("count", len(events)).Int64("start", start).Int64("end", end).Msg("fetched delegations")
	return events, nil
}

// GetTransfers returns balance transfers touching account inside
// [start, end], optionally filtered by sender or receiver.
func (c *Client) GetTransfers(ctx context.Context, account string, start, end int64, sender, receiver string) ([]TransferEvent, error) {
	params := url.Values{
		"address":         {account},
		"start_timestamp": {strconv.FormatInt(start, 10)},
		"end_timestamp":   {strconv.FormatInt(end, 10)},
		"per_page":        {"50"},
	}
	if sender != "" {
		params.Set("sender", sender)
	}
	if receiver != "" {
		params.Set("receiver", receiver)
	}

	items, err := fetchAll[transferItem](ctx, c, "/transfer/v1", params)
	if err != nil {
		return nil, fmt.Errorf("taostats transfers: %w", err)
	}

	events := make([]TransferEvent, len(items))
	for i, item := range items {
		events[i] = item.event()
	}
	c.log.Debug().Int("count", len(events)).Int64("start", start).Int64("end", end).Msg("fetched transfers")
	return events, nil
}

// GetStakeBalanceHistory returns stake balance snapshots in ascending
// timestamp order.
func (c *Client) GetStakeBalanceHistory(ctx context.Context, netuid int, hotkey, coldkey string, start, end int64) ([]BalanceSnapshot, error) {
	params := url.Values{
		"netuid":          {strconv.Itoa(netuid)},
		"hotkey":          {hotkey},
		"coldkey":         {coldkey},
		"start_timestamp": {strconv.FormatInt(start, 10)},
		"end_timestamp":   {strconv.FormatInt(end, 10)},
		"per_page":        {"50"},
		"order":           {"timestamp_asc"},
	}

	items, err := fetchAll[balanceItem](ctx, c, "/dtao/stake_balance/history/v1", params)
	if err != nil {
		return nil, fmt.Errorf("taostats stake balances: %w", err)
	}

	snapshots := make([]BalanceSnapshot, len(items))
	for i, item := range items {
		snapshots[i] = item.snapshot()
	}
	return snapshots, nil
}

// PriceAt returns the TAO price closest to ts, searching a buffered window
// around it to ride over gaps in the history.
func (c *Client) PriceAt(ctx context.Context, symbol string, ts int64) (decimal.Decimal, error) {
	if symbol != "TAO" {
		return decimal.Zero, &prices.NotAvailableError{Symbol: symbol, At: ts, Reason: "taostats only quotes TAO"}
	}

	quotes, err := c.PricesInRange(ctx, symbol, ts-priceBuffer, ts+priceBuffer)
	if err != nil {
		return decimal.Zero, err
	}

	nearest, ok := prices.Nearest(quotes, ts)
	if !ok {
		return decimal.Zero, &prices.NotAvailableError{Symbol: symbol, At: ts, Reason: "no quotes within buffer"}
	}
	return nearest.Price, nil
}

// CurrentPrice returns the latest TAO quote.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol != "TAO" {
		return decimal.Zero, &prices.NotAvailableError{Symbol: symbol, Reason: "taostats only quotes TAO"}
	}

	items, err := fetchAll[priceItem](ctx, c, "/price/latest/v1", url.Values{"asset": {symbol}})
	if err != nil {
		return decimal.Zero, err
	}
	if len(items) == 0 {
		return decimal.Zero, &prices.NotAvailableError{Symbol: symbol, Reason: "empty response"}
	}
	return items[0].Price, nil
}

// PricesInRange returns all quotes inside [start, end].
func (c *Client) PricesInRange(ctx context.Context, symbol string, start, end int64) ([]prices.Quote, error) {
	params := url.Values{
		"asset":           {symbol},
		"timestamp_start": {strconv.FormatInt(start, 10)},
		"timestamp_end":   {strconv.FormatInt(end, 10)},
		"order":           {"timestamp_asc"},
		"per_page":        {"500"},
	}

	items, err := fetchAll[priceItem](ctx, c, "/price/history/v1", params)
	if err != nil {
		return nil, fmt.Errorf("taostats price history: %w", err)
	}

	quotes := make([]prices.Quote, len(items))
	for i, item := range items {
		quotes[i] = prices.Quote{Timestamp: item.CreatedAt.Unix(), Price: item.Price}
	}
	return quotes, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
