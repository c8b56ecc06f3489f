package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus tracks how much of a lot's original quantity is still available.
type LotStatus string

const (
	StatusOpen    LotStatus = "Open"
	StatusPartial LotStatus = "Partial"
	StatusClosed  LotStatus = "Closed"
)

// SourceType identifies where an acquisition lot came from.
type SourceType string

const (
	SourceContract SourceType = "Contract"
	SourceStaking  SourceType = "Staking"
	SourceMining   SourceType = "Mining"
)

// ParseSourceType validates a source type string.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceContract, SourceStaking, SourceMining:
		return SourceType(s), nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// GainType classifies a realized gain by holding period.
type GainType string

const (
	ShortTerm GainType = "Short-term"
	LongTerm  GainType = "Long-term"
)

// LongTermHolding is the minimum holding period for long-term treatment.
const LongTermHolding = 365 * 24 * time.Hour

// AlphaLot is an acquisition of ALPHA with its USD cost basis at receipt.
// Lots are immutable except for Remaining and Status, which the consumption
// engine adjusts as disposals draw the lot down.
type AlphaLot struct {
	LotID           string
	Timestamp       int64
	BlockNumber     int64
	Source          SourceType
	Quantity        decimal.Decimal // original ALPHA quantity
	Remaining       decimal.Decimal
	USDFMV          decimal.Decimal // fair market value of the full lot at receipt
	USDPerAlpha     decimal.Decimal
	TaoEquivalent   decimal.Decimal
	ExtrinsicID     string
	TransferAddress string
	Status          LotStatus
	Notes           string

	// Row is the 1-based data row this lot occupies in the backing store,
	// or 0 for lots not yet persisted.
	Row int
}

// TaoLot is TAO acquired through an ALPHA sale, carrying the sale proceeds
// forward as its cost basis.
type TaoLot struct {
	LotID        string
	Timestamp    int64
	BlockNumber  int64
	SourceSaleID string
	Quantity     decimal.Decimal // original TAO quantity
	Remaining    decimal.Decimal
	USDBasis     decimal.Decimal // cost basis of the full lot
	USDPerTao    decimal.Decimal
	Status       LotStatus
	Notes        string

	Row int
}

func (l *AlphaLot) ID() string                          { return l.LotID }
func (l *AlphaLot) AcquiredAt() int64                   { return l.Timestamp }
func (l *AlphaLot) OriginalQuantity() decimal.Decimal   { return l.Quantity }
func (l *AlphaLot) RemainingQuantity() decimal.Decimal  { return l.Remaining }
func (l *AlphaLot) TotalBasis() decimal.Decimal         { return l.USDFMV }
func (l *AlphaLot) LotStatus() LotStatus                { return l.Status }
func (l *AlphaLot) RowRef() int                         { return l.Row }
func (l *AlphaLot) setRemaining(q decimal.Decimal)      { l.Remaining = q }
func (l *AlphaLot) setStatus(s LotStatus)               { l.Status = s }

func (l *TaoLot) ID() string                         { return l.LotID }
func (l *TaoLot) AcquiredAt() int64                  { return l.Timestamp }
func (l *TaoLot) OriginalQuantity() decimal.Decimal  { return l.Quantity }
func (l *TaoLot) RemainingQuantity() decimal.Decimal { return l.Remaining }
func (l *TaoLot) TotalBasis() decimal.Decimal        { return l.USDBasis }
func (l *TaoLot) LotStatus() LotStatus               { return l.Status }
func (l *TaoLot) RowRef() int                        { return l.Row }
func (l *TaoLot) setRemaining(q decimal.Decimal)     { l.Remaining = q }
func (l *TaoLot) setStatus(s LotStatus)              { l.Status = s }

// CostLot is the view of a lot the consumption engine needs. Both *AlphaLot
// and *TaoLot satisfy it.
type CostLot interface {
	ID() string
	AcquiredAt() int64
	OriginalQuantity() decimal.Decimal
	RemainingQuantity() decimal.Decimal
	TotalBasis() decimal.Decimal
	LotStatus() LotStatus
	RowRef() int

	setRemaining(decimal.Decimal)
	setStatus(LotStatus)
}

// UnitBasis returns the lot's cost per unit, derived from the original
// quantity so that partially consumed lots keep a stable unit cost.
func UnitBasis(l CostLot) decimal.Decimal {
	q := l.OriginalQuantity()
	if q.IsZero() {
		return decimal.Zero
	}
	return l.TotalBasis().Div(q)
}

// RemainingBasis returns the basis still carried by the lot, pro-rata on the
// remaining quantity.
func RemainingBasis(l CostLot) decimal.Decimal {
	q := l.OriginalQuantity()
	if q.IsZero() {
		return decimal.Zero
	}
	return l.TotalBasis().Mul(l.RemainingQuantity()).Div(q)
}

// statusFor derives the status implied by a remaining quantity.
func statusFor(remaining, original decimal.Decimal) LotStatus {
	switch {
	case remaining.LessThanOrEqual(decimal.Zero):
		return StatusClosed
	case remaining.GreaterThanOrEqual(original):
		return StatusOpen
	default:
		return StatusPartial
	}
}

// NormalizeStatus realigns a lot's status with its remaining quantity.
// Rows edited by hand occasionally drift; loading always runs them through
// here so downstream code can trust the invariant.
func NormalizeStatus(l CostLot) {
	l.setStatus(statusFor(l.RemainingQuantity(), l.OriginalQuantity()))
}

// Reopen resets a lot to its freshly acquired state.
func Reopen(l CostLot) {
	l.setRemaining(l.OriginalQuantity())
	l.setStatus(StatusOpen)
}

// HeldLongTerm reports whether a lot acquired at ts has been held for at
// least the long-term period as of now.
func HeldLongTerm(acquiredAt int64, now time.Time) bool {
	return now.Unix()-acquiredAt >= int64(LongTermHolding/time.Second)
}
