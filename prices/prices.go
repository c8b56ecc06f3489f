// Package prices abstracts USD price lookups for TAO and ALPHA valuations.
// Implementations exist for CoinMarketCap and for the taostats price API;
// they are interchangeable behind the Client interface.
package prices

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Quote is a single USD price observation.
type Quote struct {
	Timestamp int64
	Price     decimal.Decimal
}

// Client resolves USD prices for a symbol at or around a point in time.
type Client interface {
	Name() string

	// PriceAt returns the USD price closest to ts. Returns a
	// *NotAvailableError when no quote exists near enough.
	PriceAt(ctx context.Context, symbol string, ts int64) (decimal.Decimal, error)

	// CurrentPrice returns the latest USD price.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PricesInRange returns all quotes inside [start, end], ordered by
	// timestamp. Used to bulk-price daily emission lots with a single
	// upstream call.
	PricesInRange(ctx context.Context, symbol string, start, end int64) ([]Quote, error)
}

// NotAvailableError is returned when an upstream has no usable quote for
// the requested symbol and time.
type NotAvailableError struct {
	Symbol string
	At     int64
	Reason string
}

func (e *NotAvailableError) Error() string {
	if e.At > 0 {
		return fmt.Sprintf("no %s price available at %d: %s", e.Symbol, e.At, e.Reason)
	}
	return fmt.Sprintf("no %s price available: %s", e.Symbol, e.Reason)
}

// Nearest returns the quote closest to ts, or false when quotes is empty.
// Quotes need not be sorted.
func Nearest(quotes []Quote, ts int64) (Quote, bool) {
	if len(quotes) == 0 {
		return Quote{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if absDiff(q.Timestamp, ts) < absDiff(best.Timestamp, ts) {
			best = q
		}
	}
	return best, true
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
