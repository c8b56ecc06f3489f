package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/prices"
	"github.com/subtensorlabs/taobooks/sheets"
	"github.com/subtensorlabs/taobooks/taostats"
)

const (
	hotkey    = "5Hotkey"
	coldkey   = "5Coldkey"
	contract  = "5Contract"
	brokerage = "5Brokerage"
	netuid    = 64
)

// testNow anchors every window; events in tests sit shortly before it.
var testNow = time.Unix(1760000000, 0).UTC()

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(v int) *int { return &v }

type stubWallet struct {
	delegations []taostats.DelegationEvent
	transfers   []taostats.TransferEvent
	snapshots   []taostats.BalanceSnapshot
}

func (w *stubWallet) GetDelegations(_ context.Context, _ int, _, _ string, start, end int64, isTransfer *bool) ([]taostats.DelegationEvent, error) {
	var out []taostats.DelegationEvent
	for _, e := range w.delegations {
		if e.Timestamp < start || e.Timestamp > end {
			continue
		}
		if isTransfer != nil && e.IsTransfer != *isTransfer {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (w *stubWallet) GetTransfers(_ context.Context, _ string, start, end int64, _, _ string) ([]taostats.TransferEvent, error) {
	var out []taostats.TransferEvent
	for _, e := range w.transfers {
		if e.Timestamp >= start && e.Timestamp <= end {
			out = append(out, e)
		}
	}
	return out, nil
}

func (w *stubWallet) GetStakeBalanceHistory(_ context.Context, _ int, _, _ string, start, end int64) ([]taostats.BalanceSnapshot, error) {
	var out []taostats.BalanceSnapshot
	for _, s := range w.snapshots {
		if s.Timestamp >= start && s.Timestamp <= end {
			out = append(out, s)
		}
	}
	return out, nil
}

type stubPrices struct {
	price  decimal.Decimal
	quotes []prices.Quote
	failAt map[int64]bool
}

func (p *stubPrices) Name() string { return "stub" }

func (p *stubPrices) PriceAt(_ context.Context, symbol string, ts int64) (decimal.Decimal, error) {
	if p.failAt[ts] {
		return decimal.Zero, &prices.NotAvailableError{Symbol: symbol, At: ts, Reason: "no quote"}
	}
	return p.price, nil
}

func (p *stubPrices) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return p.price, nil
}

func (p *stubPrices) PricesInRange(context.Context, string, int64, int64) ([]prices.Quote, error) {
	return p.quotes, nil
}

func newTestTracker(t *testing.T, wallet *stubWallet, priceClient prices.Client) (*Tracker, *sheets.Ledger) {
	t.Helper()
	books := sheets.NewLedger(sheets.NewMemoryStore())
	tr, err := New(wallet, priceClient, books, Options{
		Wallet: Wallet{
			Hotkey:        hotkey,
			Coldkey:       coldkey,
			SmartContract: contract,
			Brokerage:     brokerage,
			NetUID:        netuid,
		},
		Strategy: ledger.FIFO,
		Accounts: ledger.DefaultAccounts(),
		Now:      func() time.Time { return testNow },
	}, zerolog.Nop())
	assert.NoError(t, err)
	assert.NoError(t, tr.Init(context.Background()))
	return tr, books
}

func contractDelegation(ts int64, alpha, usd string) taostats.DelegationEvent {
	return taostats.DelegationEvent{
		Timestamp:       ts,
		BlockNumber:     ts / 12,
		Action:          "DELEGATE",
		Alpha:           d(alpha),
		Tao:             d(alpha).Mul(d("0.02")),
		USD:             d(usd),
		AlphaPriceInUSD: d(usd).Div(d(alpha)),
		Delegate:        hotkey,
		Nominator:       coldkey,
		IsTransfer:      true,
		TransferAddress: contract,
		ExtrinsicID:     "ext-income",
	}
}

func TestProcessContractIncome(t *testing.T) {
	ctx := context.Background()
	wallet := &stubWallet{
		delegations: []taostats.DelegationEvent{
			contractDelegation(testNow.Unix()-3600, "10", "65"),
			contractDelegation(testNow.Unix()-1800, "4", "26"),
			// Different nominator: someone else's income.
			{
				Timestamp: testNow.Unix() - 900, Action: "DELEGATE", Alpha: d("99"),
				Delegate: hotkey, Nominator: "5Other", IsTransfer: true, TransferAddress: contract,
			},
			// Transfer from a non-contract address: not income.
			{
				Timestamp: testNow.Unix() - 600, Action: "DELEGATE", Alpha: d("7"),
				Delegate: hotkey, Nominator: coldkey, IsTransfer: true, TransferAddress: "5Stranger",
			},
		},
	}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("400")})

	lots, err := tr.ProcessContractIncome(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(lots))
	assert.Equal(t, "ALPHA-0001", lots[0].LotID)
	assert.Equal(t, "ALPHA-0002", lots[1].LotID)
	assert.Equal(t, ledger.SourceContract, lots[0].Source)
	assert.True(t, lots[0].USDFMV.Equal(d("65")))

	stored, err := books.AlphaLots(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(stored))

	// Watermark advanced: a resumed run finds nothing new.
	again, err := tr.ProcessContractIncome(ctx, nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(again))
}

func TestProcessContractIncomeRejectsNonPositiveLookback(t *testing.T) {
	tr, _ := newTestTracker(t, &stubWallet{}, &stubPrices{price: d("400")})
	_, err := tr.ProcessContractIncome(context.Background(), intPtr(0))
	assert.Error(t, err)
}

func saleEvent(ts int64, alpha, tao string) taostats.DelegationEvent {
	return taostats.DelegationEvent{
		Timestamp:   ts,
		BlockNumber: ts / 12,
		Action:      "UNDELEGATE",
		Alpha:       d(alpha),
		Tao:         d(tao),
		Delegate:    hotkey,
		Nominator:   coldkey,
		ExtrinsicID: "ext-sale",
	}
}

func seedAlphaLots(t *testing.T, books *sheets.Ledger, lots ...*ledger.AlphaLot) {
	t.Helper()
	assert.NoError(t, books.AppendAlphaLots(context.Background(), lots))
}

func alphaLot(id string, ts int64, qty, fmv string) *ledger.AlphaLot {
	return &ledger.AlphaLot{
		LotID:     id,
		Timestamp: ts,
		Source:    ledger.SourceContract,
		Quantity:  d(qty),
		Remaining: d(qty),
		USDFMV:    d(fmv),
		Status:    ledger.StatusOpen,
	}
}

func TestProcessSalesSequentialConsumption(t *testing.T) {
	// Three lots of 10 at $5/$6/$7 a unit; three sales of 10 at $100
	// proceeds each. Sale i must consume exactly lot i.
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{
		delegations: []taostats.DelegationEvent{
			saleEvent(base+100, "10", "10"),
			saleEvent(base+200, "10", "10"),
			saleEvent(base+300, "10", "10"),
		},
	}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("10")})
	seedAlphaLots(t, books,
		alphaLot("ALPHA-0001", base-300, "10", "50"),
		alphaLot("ALPHA-0002", base-200, "10", "60"),
		alphaLot("ALPHA-0003", base-100, "10", "70"),
	)
	assert.NoError(t, tr.Init(ctx))

	sales, err := tr.ProcessSales(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 3, len(sales))

	wantGains := []string{"50", "40", "30"}
	for i, sale := range sales {
		assert.Equal(t, 1, len(sale.ConsumedLots))
		assert.Equal(t, alphaLotID(i+1), sale.ConsumedLots[0].LotID)
		assert.True(t, sale.RealizedGain.Equal(d(wantGains[i])), "sale %d gain %s", i+1, sale.RealizedGain)
		assert.Equal(t, ledger.ShortTerm, sale.GainType)
	}

	lots, err := books.AlphaLots(ctx)
	assert.NoError(t, err)
	for _, lot := range lots {
		assert.Equal(t, ledger.StatusClosed, lot.Status)
		assert.True(t, lot.Remaining.IsZero())
	}

	taoLots, err := books.TaoLots(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(taoLots))
	assert.True(t, taoLots[0].Quantity.Equal(d("10")))
	assert.True(t, taoLots[0].USDBasis.Equal(d("100")))
	assert.Equal(t, sales[0].SaleID, taoLots[0].SourceSaleID)
}

func alphaLotID(n int) string {
	return []string{"", "ALPHA-0001", "ALPHA-0002", "ALPHA-0003"}[n]
}

func TestProcessSalesSkipsInsufficientLots(t *testing.T) {
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{
		delegations: []taostats.DelegationEvent{
			saleEvent(base+100, "50", "50"), // more than the lots hold
			saleEvent(base+200, "5", "5"),
		},
	}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("10")})
	seedAlphaLots(t, books, alphaLot("ALPHA-0001", base-300, "10", "50"))
	assert.NoError(t, tr.Init(ctx))

	sales, err := tr.ProcessSales(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(sales))
	assert.True(t, sales[0].AlphaQuantity.Equal(d("5")))
}

func TestProcessSalesSkipsMissingPrice(t *testing.T) {
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{
		delegations: []taostats.DelegationEvent{
			saleEvent(base+100, "5", "5"),
			saleEvent(base+200, "5", "5"),
		},
	}
	priceClient := &stubPrices{price: d("10"), failAt: map[int64]bool{base + 100: true}}
	tr, books := newTestTracker(t, wallet, priceClient)
	seedAlphaLots(t, books, alphaLot("ALPHA-0001", base-300, "20", "100"))
	assert.NoError(t, tr.Init(ctx))

	sales, err := tr.ProcessSales(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(sales))
	assert.Equal(t, base+200, sales[0].Timestamp)
}

func TestProcessSalesFeeAndSlippage(t *testing.T) {
	ctx := context.Background()
	base := testNow.Unix() - 7200
	slip := d("0.05")
	event := saleEvent(base+100, "10", "1.9")
	event.Slippage = &slip
	event.FeeTao = d("0.01")
	wallet := &stubWallet{delegations: []taostats.DelegationEvent{event}}

	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("400")})
	seedAlphaLots(t, books, alphaLot("ALPHA-0001", base-300, "10", "500"))
	assert.NoError(t, tr.Init(ctx))

	sales, err := tr.ProcessSales(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(sales))

	sale := sales[0]
	// expected = 1.9 / 0.95 = 2, slippage 0.1 TAO = $40.
	assert.True(t, sale.TaoExpected.Equal(d("2")))
	assert.True(t, sale.SlippageTao.Equal(d("0.1")))
	assert.True(t, sale.SlippageUSD.Equal(d("40")))
	// proceeds 760, basis 500, fee $4: gain 256. Slippage is already in
	// the proceeds and must not be subtracted again.
	assert.True(t, sale.USDProceeds.Equal(d("760")))
	assert.True(t, sale.NetworkFeeUSD.Equal(d("4")))
	assert.True(t, sale.RealizedGain.Equal(d("256")))

	taoLots, err := books.TaoLots(ctx)
	assert.NoError(t, err)
	assert.True(t, taoLots[0].Quantity.Equal(d("1.89")))
	assert.True(t, taoLots[0].USDBasis.Equal(d("756")))
}

func TestProcessSalesLongTerm(t *testing.T) {
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{delegations: []taostats.DelegationEvent{saleEvent(base+100, "5", "5")}}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("10")})

	twoYearsAgo := testNow.AddDate(-2, 0, 0).Unix()
	seedAlphaLots(t, books, alphaLot("ALPHA-0001", twoYearsAgo, "10", "50"))
	assert.NoError(t, tr.Init(ctx))

	sales, err := tr.ProcessSales(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, ledger.LongTerm, sales[0].GainType)
}

func expenseEvent(ts int64, alpha, usd, to string) taostats.DelegationEvent {
	return taostats.DelegationEvent{
		Timestamp:       ts,
		BlockNumber:     ts / 12,
		Action:          "UNDELEGATE",
		Alpha:           d(alpha),
		USD:             d(usd),
		Delegate:        hotkey,
		Nominator:       coldkey,
		IsTransfer:      true,
		TransferAddress: to,
		ExtrinsicID:     "ext-exp",
	}
}

func TestProcessExpenses(t *testing.T) {
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{
		delegations: []taostats.DelegationEvent{
			expenseEvent(base+100, "4", "30", "5Vendor"),
			// Back to the contract: not an expense.
			expenseEvent(base+200, "3", "20", contract),
		},
	}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("400")})
	seedAlphaLots(t, books, alphaLot("ALPHA-0001", base-300, "10", "50"))
	assert.NoError(t, tr.Init(ctx))

	expenses, err := tr.ProcessExpenses(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(expenses))

	e := expenses[0]
	assert.Equal(t, "EXP-0001", e.ExpenseID)
	assert.Equal(t, "5Vendor", e.TransferAddress)
	assert.Equal(t, "", e.Category)
	// 4 of 10 units consumed: basis 20. Gain = 30 - 20.
	assert.True(t, e.USDProceeds.Equal(d("30")))
	assert.True(t, e.CostBasisUSD.Equal(d("20")))
	assert.True(t, e.RealizedGain.Equal(d("10")))

	lots, err := books.AlphaLots(ctx)
	assert.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, lots[0].Status)
	assert.True(t, lots[0].Remaining.Equal(d("6")))
}

func TestProcessTransfersFoldsFeeSiblings(t *testing.T) {
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{
		transfers: []taostats.TransferEvent{
			{Timestamp: base + 100, BlockNumber: 900, From: coldkey, To: brokerage,
				AmountTao: d("3"), FeeTao: d("0.005"), ExtrinsicID: "ext-1", TransactionHash: "0xaaa"},
			{Timestamp: base + 100, BlockNumber: 900, From: coldkey, To: "5FeeCollector",
				AmountTao: d("0"), FeeTao: d("0.005"), ExtrinsicID: "ext-1", TransactionHash: "0xaaa"},
			// Unrelated transfer, not to the brokerage.
			{Timestamp: base + 200, From: coldkey, To: "5Friend", AmountTao: d("1"), ExtrinsicID: "ext-2"},
		},
	}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("400")})

	taoLot := &ledger.TaoLot{
		LotID: "TAO-0001", Timestamp: base - 300, Quantity: d("10"), Remaining: d("10"),
		USDBasis: d("2000"), Status: ledger.StatusOpen,
	}
	assert.NoError(t, books.AppendTaoLots(ctx, []*ledger.TaoLot{taoLot}))
	assert.NoError(t, tr.Init(ctx))

	transfers, err := tr.ProcessTransfers(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(transfers))

	tf := transfers[0]
	assert.Equal(t, "XFER-0001", tf.TransferID)
	assert.True(t, tf.TaoAmount.Equal(d("3")))
	assert.True(t, tf.FeeTao.Equal(d("0.01")))
	assert.True(t, tf.TotalOutflowTao.Equal(d("3.01")))
	// Basis $200/TAO: total 602, split 600 brokerage / 2 fees.
	assert.True(t, tf.CostBasisUSD.Equal(d("600")))
	assert.True(t, tf.FeeCostBasisUSD.Equal(d("2")))
	// Proceeds 3 * 400 = 1200 against the brokerage basis only.
	assert.True(t, tf.RealizedGain.Equal(d("600")))

	lots, err := books.TaoLots(ctx)
	assert.NoError(t, err)
	assert.True(t, lots[0].Remaining.Equal(d("6.99")))
	assert.Equal(t, ledger.StatusPartial, lots[0].Status)
}

func TestProcessTransfersRespectsAsOf(t *testing.T) {
	// The only TAO lot postdates the transfer; as-of filtering makes the
	// disposal insufficient, so it is skipped.
	ctx := context.Background()
	base := testNow.Unix() - 7200
	wallet := &stubWallet{
		transfers: []taostats.TransferEvent{
			{Timestamp: base + 100, From: coldkey, To: brokerage, AmountTao: d("1"), ExtrinsicID: "ext-1"},
		},
	}
	tr, books := newTestTracker(t, wallet, &stubPrices{price: d("400")})

	late := &ledger.TaoLot{
		LotID: "TAO-0001", Timestamp: base + 500, Quantity: d("10"), Remaining: d("10"),
		USDBasis: d("2000"), Status: ledger.StatusOpen,
	}
	assert.NoError(t, books.AppendTaoLots(ctx, []*ledger.TaoLot{late}))
	assert.NoError(t, tr.Init(ctx))

	transfers, err := tr.ProcessTransfers(ctx, intPtr(1))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(transfers))

	lots, err := books.TaoLots(ctx)
	assert.NoError(t, err)
	assert.True(t, lots[0].Remaining.Equal(d("10")))
}
