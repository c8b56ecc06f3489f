package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects the order in which open lots are consumed.
type Strategy string

const (
	// FIFO consumes the oldest lots first.
	FIFO Strategy = "FIFO"
	// HIFO consumes the lots with the highest unit cost first, which
	// minimizes the realized gain of each disposal.
	HIFO Strategy = "HIFO"
)

// ParseStrategy parses a cost basis method name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(FIFO):
		return FIFO, nil
	case string(HIFO):
		return HIFO, nil
	}
	return "", fmt.Errorf("unknown cost basis method %q (want FIFO or HIFO)", s)
}

// SelectOpenLots returns the lots eligible for consumption, ordered by the
// strategy. A lot is eligible when it still has remaining quantity and, if
// asOf is nonzero, was acquired at or before asOf. The returned slice holds
// the same pointers as the input; ordering is deterministic for equal keys.
func SelectOpenLots[L CostLot](lots []L, strategy Strategy, asOf int64) []L {
	eligible := make([]L, 0, len(lots))
	for _, l := range lots {
		if l.LotStatus() == StatusClosed || !l.RemainingQuantity().IsPositive() {
			continue
		}
		if asOf > 0 && l.AcquiredAt() > asOf {
			continue
		}
		eligible = append(eligible, l)
	}

	switch strategy {
	case HIFO:
		sort.SliceStable(eligible, func(i, j int) bool {
			ui, uj := UnitBasis(eligible[i]), UnitBasis(eligible[j])
			if !ui.Equal(uj) {
				return ui.GreaterThan(uj)
			}
			return eligible[i].AcquiredAt() < eligible[j].AcquiredAt()
		})
	default:
		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].AcquiredAt() != eligible[j].AcquiredAt() {
				return eligible[i].AcquiredAt() < eligible[j].AcquiredAt()
			}
			return eligible[i].ID() < eligible[j].ID()
		})
	}

	return eligible
}
