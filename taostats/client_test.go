package taostats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/prices"
)

var _ prices.Client = (*Client)(nil)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New("test-key", zerolog.Nop(), WithBaseURL(srv.URL), WithPacing(0))
	assert.NoError(t, err)
	return c
}

func TestGetDelegations(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/delegation/v1", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("is_transfer"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"pagination": map[string]any{"next_page": nil},
			"data": []map[string]any{
				{
					"timestamp":          "2025-11-03T10:15:00Z",
					"block_number":       4100200,
					"action":             "DELEGATE",
					"amount":             "1500000000",
					"alpha":              "2000000000",
					"usd":                "42.5",
					"alpha_price_in_usd": "21.25",
					"alpha_price_in_tao": "0.75",
					"slippage":           nil,
					"fee":                "125000",
					"extrinsic_id":       "4100200-0002",
					"delegate":           map[string]string{"ss58": "5Validator"},
					"nominator":          map[string]string{"ss58": "5Coldkey"},
					"transfer_address":   map[string]string{"ss58": "5Contract"},
					"is_transfer":        true,
				},
			},
		})
	}))

	events, err := c.GetDelegations(context.Background(), 64, "5Validator", "5Coldkey", 0, 2_000_000_000, boolPtr(true))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(events))

	ev := events[0]
	assert.Equal(t, "DELEGATE", ev.Action)
	assert.True(t, ev.Alpha.Equal(decimal.NewFromInt(2)), "got %s", ev.Alpha)
	assert.True(t, ev.Tao.Equal(decimal.NewFromFloat(1.5)), "got %s", ev.Tao)
	assert.True(t, ev.USD.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, "5Contract", ev.TransferAddress)
	assert.True(t, ev.IsTransfer)
	assert.Zero(t, ev.Slippage)
	assert.Equal(t, "2025-11-03", ev.Day())
}

func TestFetchAllPagination(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var next *int
		if page < 3 {
			n := page + 1
			next = &n
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pagination": map[string]any{"next_page": next},
			"data": []map[string]any{
				{
					"timestamp":    "2025-11-03T10:15:00Z",
					"block_number": page,
					"from":         map[string]string{"ss58": "5A"},
					"to":           map[string]string{"ss58": "5B"},
					"amount":       "1000000000",
					"extrinsic_id": "x",
				},
			},
		})
	}))

	events, err := c.GetTransfers(context.Background(), "5A", 0, 2_000_000_000, "", "")
	assert.NoError(t, err)
	assert.Equal(t, 3, len(events))
	assert.Equal(t, int64(1), events[0].BlockNumber)
	assert.Equal(t, int64(3), events[2].BlockNumber)
	assert.True(t, events[0].FeeTao.IsZero())
}

func TestPriceAtPicksNearestQuote(t *testing.T) {
	target := int64(1_762_000_000)

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/price/history/v1", r.URL.Path)
		assert.Equal(t, strconv.FormatInt(target-1800, 10), r.URL.Query().Get("timestamp_start"))
		assert.Equal(t, strconv.FormatInt(target+1800, 10), r.URL.Query().Get("timestamp_end"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"pagination": map[string]any{"next_page": nil},
			"data": []map[string]any{
				{"created_at": "2025-11-01T11:56:40Z", "price": "400.10"}, // 30 min early
				{"created_at": "2025-11-01T12:24:40Z", "price": "401.55"}, // 2 min early
				{"created_at": "2025-11-01T12:36:40Z", "price": "399.00"}, // 10 min late
			},
		})
	}))

	price, err := c.PriceAt(context.Background(), "TAO", target)
	assert.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("401.55")), "got %s", price)
}

func TestPriceAtRejectsOtherSymbols(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := c.PriceAt(context.Background(), "BTC", 100)
	var notAvailable *prices.NotAvailableError
	assert.True(t, errors.As(err, &notAvailable))
}

func TestPriceAtEmptyHistory(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pagination": map[string]any{"next_page": nil},
			"data":       []any{},
		})
	}))

	_, err := c.PriceAt(context.Background(), "TAO", 100)
	var notAvailable *prices.NotAvailableError
	assert.True(t, errors.As(err, &notAvailable))
}

func boolPtr(v bool) *bool { return &v }
