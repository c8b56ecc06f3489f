package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotConsumption records how much quantity and basis a single disposal took
// from a single lot.
type LotConsumption struct {
	LotID      string
	Quantity   decimal.Decimal
	CostBasis  decimal.Decimal
	AcquiredAt int64
}

// LotUpdate is the persistence diff produced when a disposal draws a lot
// down. Row refers to the lot's 1-based data row in the backing store.
type LotUpdate struct {
	LotID        string
	Row          int
	NewRemaining decimal.Decimal
	NewStatus    LotStatus
}

// ConsumeRequest describes a disposal against a set of lots.
type ConsumeRequest struct {
	Asset    string // label used in errors, e.g. "ALPHA" or "TAO"
	Quantity decimal.Decimal
	Strategy Strategy

	// AsOf, when nonzero, restricts consumption to lots acquired at or
	// before this timestamp. A disposal must never draw on a lot that did
	// not exist yet at the time of the disposing transaction.
	AsOf int64

	// Now anchors the holding period check. Zero means time.Now.
	Now time.Time
}

// ConsumeResult is the outcome of a disposal.
type ConsumeResult struct {
	Consumptions []LotConsumption
	CostBasis    decimal.Decimal
	GainType     GainType
	Updates      []LotUpdate
}

// Consume draws the requested quantity from the eligible open lots in
// strategy order, mutating the lots in place and returning the per-lot
// consumptions, the total cost basis, the holding period classification,
// and the persistence diffs. The disposal is long-term only when every
// consumed lot clears the holding period; a single short lot makes the
// whole disposal short-term.
//
// When the eligible lots cannot cover the request, an
// *InsufficientLotsError is returned and no lot is modified.
func Consume[L CostLot](lots []L, req ConsumeRequest) (*ConsumeResult, error) {
	if !req.Quantity.IsPositive() {
		return &ConsumeResult{GainType: ShortTerm, CostBasis: decimal.Zero}, nil
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	eligible := SelectOpenLots(lots, req.Strategy, req.AsOf)

	available := decimal.Zero
	for _, l := range eligible {
		available = available.Add(l.RemainingQuantity())
	}
	if available.LessThan(req.Quantity) {
		return nil, NewInsufficientLotsError(req.Asset, req.Quantity, available, req.AsOf)
	}

	res := &ConsumeResult{
		CostBasis: decimal.Zero,
		GainType:  LongTerm,
	}

	remaining := req.Quantity
	for _, l := range eligible {
		if !remaining.IsPositive() {
			break
		}

		take := decimal.Min(remaining, l.RemainingQuantity())
		basis := l.TotalBasis().Mul(take).Div(l.OriginalQuantity())

		res.Consumptions = append(res.Consumptions, LotConsumption{
			LotID:      l.ID(),
			Quantity:   take,
			CostBasis:  basis,
			AcquiredAt: l.AcquiredAt(),
		})
		res.CostBasis = res.CostBasis.Add(basis)

		if !HeldLongTerm(l.AcquiredAt(), now) {
			res.GainType = ShortTerm
		}

		newRemaining := l.RemainingQuantity().Sub(take)
		l.setRemaining(newRemaining)
		l.setStatus(statusFor(newRemaining, l.OriginalQuantity()))

		res.Updates = append(res.Updates, LotUpdate{
			LotID:        l.ID(),
			Row:          l.RowRef(),
			NewRemaining: newRemaining,
			NewStatus:    l.LotStatus(),
		})

		remaining = remaining.Sub(take)
	}

	return res, nil
}

// TotalRemaining sums the remaining quantity across all non-closed lots.
func TotalRemaining[L CostLot](lots []L) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		if l.LotStatus() == StatusClosed {
			continue
		}
		total = total.Add(l.RemainingQuantity())
	}
	return total
}
