package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func alphaLot(id string, ts int64, qty, fmv string) *AlphaLot {
	return &AlphaLot{
		LotID:     id,
		Timestamp: ts,
		Source:    SourceContract,
		Quantity:  d(qty),
		Remaining: d(qty),
		USDFMV:    d(fmv),
		Status:    StatusOpen,
	}
}

func TestConsumeFIFO(t *testing.T) {
	now := time.Unix(1000000, 0)

	t.Run("sequential disposals close lots in acquisition order", func(t *testing.T) {
		lots := []*AlphaLot{
			alphaLot("ALPHA-0001", 100, "10", "50"),
			alphaLot("ALPHA-0002", 200, "10", "60"),
			alphaLot("ALPHA-0003", 300, "10", "70"),
		}

		for i, wantBasis := range []string{"50", "60", "70"} {
			res, err := Consume(lots, ConsumeRequest{
				Asset:    "ALPHA",
				Quantity: d("10"),
				Strategy: FIFO,
				Now:      now,
			})
			assert.NoError(t, err)
			assert.Equal(t, 1, len(res.Consumptions))
			assert.True(t, res.CostBasis.Equal(d(wantBasis)), "disposal %d: basis %s", i, res.CostBasis)
			assert.Equal(t, StatusClosed, lots[i].Status)
		}
		assert.True(t, TotalRemaining(lots).IsZero())
	})

	t.Run("partial disposals allocate basis pro rata", func(t *testing.T) {
		lots := []*AlphaLot{
			alphaLot("ALPHA-0001", 100, "10", "100"),
			alphaLot("ALPHA-0002", 200, "10", "120"),
			alphaLot("ALPHA-0003", 300, "10", "140"),
		}

		// 5 from lot 1.
		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("5"), Strategy: FIFO, Now: now})
		assert.NoError(t, err)
		assert.True(t, res.CostBasis.Equal(d("50")), "got %s", res.CostBasis)
		assert.Equal(t, StatusPartial, lots[0].Status)

		// 5 remaining from lot 1 plus 2 from lot 2.
		res, err = Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("7"), Strategy: FIFO, Now: now})
		assert.NoError(t, err)
		assert.True(t, res.CostBasis.Equal(d("74")), "got %s", res.CostBasis)
		assert.Equal(t, StatusClosed, lots[0].Status)
		assert.Equal(t, StatusPartial, lots[1].Status)
		assert.Equal(t, 2, len(res.Consumptions))

		// 8 remaining from lot 2. Lot 3 untouched.
		res, err = Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("8"), Strategy: FIFO, Now: now})
		assert.NoError(t, err)
		assert.True(t, res.CostBasis.Equal(d("96")), "got %s", res.CostBasis)
		assert.Equal(t, StatusClosed, lots[1].Status)
		assert.Equal(t, StatusOpen, lots[2].Status)
		assert.True(t, lots[2].Remaining.Equal(d("10")))
	})
}

func TestConsumeHIFO(t *testing.T) {
	now := time.Unix(1000000, 0)

	t.Run("highest unit cost consumed first", func(t *testing.T) {
		lots := []*AlphaLot{
			alphaLot("ALPHA-0001", 100, "10", "50"),  // $5/unit
			alphaLot("ALPHA-0002", 200, "10", "140"), // $14/unit
			alphaLot("ALPHA-0003", 300, "10", "90"),  // $9/unit
		}

		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("15"), Strategy: HIFO, Now: now})
		assert.NoError(t, err)
		assert.Equal(t, "ALPHA-0002", res.Consumptions[0].LotID)
		assert.Equal(t, "ALPHA-0003", res.Consumptions[1].LotID)
		// 10 * 14 + 5 * 9
		assert.True(t, res.CostBasis.Equal(d("185")), "got %s", res.CostBasis)
	})

	t.Run("equal unit cost falls back to oldest first", func(t *testing.T) {
		lots := []*AlphaLot{
			alphaLot("ALPHA-0002", 200, "10", "100"),
			alphaLot("ALPHA-0001", 100, "10", "100"),
		}

		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("5"), Strategy: HIFO, Now: now})
		assert.NoError(t, err)
		assert.Equal(t, "ALPHA-0001", res.Consumptions[0].LotID)
	})

	t.Run("unit cost stays stable after partial consumption", func(t *testing.T) {
		lot := alphaLot("ALPHA-0001", 100, "10", "100")
		lot.Remaining = d("4")
		lot.Status = StatusPartial

		assert.True(t, UnitBasis(lot).Equal(d("10")))
		assert.True(t, RemainingBasis(lot).Equal(d("40")))
	})
}

func TestConsumeAsOfCutoff(t *testing.T) {
	now := time.Unix(1000000, 0)

	lots := []*AlphaLot{
		alphaLot("ALPHA-0001", 100, "10", "50"),
		alphaLot("ALPHA-0002", 500, "10", "60"),
	}

	t.Run("lots acquired after the disposal are not eligible", func(t *testing.T) {
		_, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("15"), Strategy: FIFO, AsOf: 200, Now: now})
		var insufficient *InsufficientLotsError
		assert.True(t, errors.As(err, &insufficient))
		assert.True(t, insufficient.Available.Equal(d("10")))
	})

	t.Run("error leaves lot state untouched", func(t *testing.T) {
		assert.Equal(t, StatusOpen, lots[0].Status)
		assert.True(t, lots[0].Remaining.Equal(d("10")))
	})

	t.Run("same timestamp is eligible", func(t *testing.T) {
		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("15"), Strategy: FIFO, AsOf: 500, Now: now})
		assert.NoError(t, err)
		assert.Equal(t, 2, len(res.Consumptions))
	})
}

func TestConsumeHoldingPeriod(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(-2, 0, 0).Unix()
	recent := now.AddDate(0, -1, 0).Unix()

	t.Run("all lots held a year or more is long-term", func(t *testing.T) {
		lots := []*AlphaLot{alphaLot("ALPHA-0001", old, "10", "50")}
		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("5"), Strategy: FIFO, Now: now})
		assert.NoError(t, err)
		assert.Equal(t, LongTerm, res.GainType)
	})

	t.Run("a single short lot makes the disposal short-term", func(t *testing.T) {
		lots := []*AlphaLot{
			alphaLot("ALPHA-0001", old, "10", "50"),
			alphaLot("ALPHA-0002", recent, "10", "60"),
		}
		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("15"), Strategy: FIFO, Now: now})
		assert.NoError(t, err)
		assert.Equal(t, ShortTerm, res.GainType)
	})

	t.Run("exactly 365 days qualifies as long-term", func(t *testing.T) {
		ts := now.Add(-LongTermHolding).Unix()
		lots := []*AlphaLot{alphaLot("ALPHA-0001", ts, "10", "50")}
		res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("5"), Strategy: FIFO, Now: now})
		assert.NoError(t, err)
		assert.Equal(t, LongTerm, res.GainType)
	})
}

func TestConsumeUpdates(t *testing.T) {
	now := time.Unix(1000000, 0)

	lots := []*AlphaLot{
		alphaLot("ALPHA-0001", 100, "10", "50"),
		alphaLot("ALPHA-0002", 200, "10", "60"),
	}
	lots[0].Row = 1
	lots[1].Row = 2

	res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: d("12"), Strategy: FIFO, Now: now})
	assert.NoError(t, err)

	assert.Equal(t, 2, len(res.Updates))
	assert.Equal(t, "ALPHA-0001", res.Updates[0].LotID)
	assert.Equal(t, 1, res.Updates[0].Row)
	assert.True(t, res.Updates[0].NewRemaining.IsZero())
	assert.Equal(t, StatusClosed, res.Updates[0].NewStatus)
	assert.Equal(t, "ALPHA-0002", res.Updates[1].LotID)
	assert.True(t, res.Updates[1].NewRemaining.Equal(d("8")))
	assert.Equal(t, StatusPartial, res.Updates[1].NewStatus)
}

func TestConsumeZeroQuantity(t *testing.T) {
	lots := []*AlphaLot{alphaLot("ALPHA-0001", 100, "10", "50")}
	res, err := Consume(lots, ConsumeRequest{Asset: "ALPHA", Quantity: decimal.Zero, Strategy: FIFO})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(res.Consumptions))
	assert.True(t, res.CostBasis.IsZero())
	assert.Equal(t, StatusOpen, lots[0].Status)
}

func TestNormalizeStatus(t *testing.T) {
	lot := alphaLot("ALPHA-0001", 100, "10", "50")
	lot.Remaining = d("3")
	lot.Status = StatusOpen // drifted

	NormalizeStatus(lot)
	assert.Equal(t, StatusPartial, lot.Status)

	lot.Remaining = decimal.Zero
	NormalizeStatus(lot)
	assert.Equal(t, StatusClosed, lot.Status)

	Reopen(lot)
	assert.Equal(t, StatusOpen, lot.Status)
	assert.True(t, lot.Remaining.Equal(d("10")))
}
