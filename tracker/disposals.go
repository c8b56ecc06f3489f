package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/prices"
	"github.com/subtensorlabs/taobooks/taostats"
	"github.com/subtensorlabs/taobooks/telemetry"
)

var one = decimal.NewFromInt(1)

// ProcessSales turns in-window undelegations into sale records: price the
// TAO received, consume ALPHA lots for the disposed quantity, and open a
// TAO lot for the net proceeds. Lot state is loaded once and mutated across
// the whole batch so each sale sees the drawdowns of the ones before it.
func (t *Tracker) ProcessSales(ctx context.Context, lookback *int) ([]*ledger.Sale, error) {
	timer := telemetry.FromContext(ctx).Start("sales")
	defer timer.End()

	window, err := ledger.ResolveWindow("sales", t.state.lastSale, lookback, t.now().Unix())
	if err != nil {
		return nil, err
	}

	events, err := t.wallet.GetDelegations(ctx, t.opts.Wallet.NetUID, t.opts.Wallet.Hotkey, t.opts.Wallet.Coldkey,
		window.Start, window.End, nil)
	if err != nil {
		return nil, err
	}
	undelegations := lo.Filter(events, func(e taostats.DelegationEvent, _ int) bool {
		return t.classify(e) == KindSale
	})
	if len(undelegations) == 0 {
		t.log.Info().Msg("no new sales")
		return nil, nil
	}
	sort.Slice(undelegations, func(i, j int) bool { return undelegations[i].Timestamp < undelegations[j].Timestamp })

	lots, err := t.books.AlphaLots(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sales      []*ledger.Sale
		taoLots    []*ledger.TaoLot
		lotUpdates []ledger.LotUpdate
	)
	for _, e := range undelegations {
		taoPrice, err := t.prices.PriceAt(ctx, "TAO", e.Timestamp)
		if err != nil {
			if skippable(err) {
				t.log.Warn().Err(err).Str("extrinsic", e.ExtrinsicID).Msg("skipping sale")
				continue
			}
			return nil, err
		}

		expected := expectedTao(e)
		slippageTao := expected.Sub(e.Tao)
		proceeds := e.Tao.Mul(taoPrice)
		feeUSD := e.FeeTao.Mul(taoPrice)

		res, err := ledger.Consume(lots, ledger.ConsumeRequest{
			Asset:    "ALPHA",
			Quantity: e.Alpha,
			Strategy: t.opts.Strategy,
			AsOf:     e.Timestamp,
			Now:      t.now(),
		})
		if err != nil {
			if skippable(err) {
				t.log.Warn().Err(err).Str("extrinsic", e.ExtrinsicID).Msg("skipping sale")
				continue
			}
			return nil, err
		}
		lotUpdates = append(lotUpdates, res.Updates...)

		sale := &ledger.Sale{
			SaleID:        t.nextSaleID(),
			Timestamp:     e.Timestamp,
			BlockNumber:   e.BlockNumber,
			AlphaQuantity: e.Alpha,
			TaoReceived:   e.Tao,
			TaoExpected:   expected,
			SlippageTao:   slippageTao,
			SlippageUSD:   slippageTao.Mul(taoPrice),
			SlippageRatio: slippageRatio(e, expected),
			TaoPriceUSD:   taoPrice,
			USDProceeds:   proceeds,
			CostBasisUSD:  res.CostBasis,
			RealizedGain:  proceeds.Sub(res.CostBasis).Sub(feeUSD),
			GainType:      res.GainType,
			NetworkFeeTao: e.FeeTao,
			NetworkFeeUSD: feeUSD,
			ExtrinsicID:   e.ExtrinsicID,
			ConsumedLots:  res.Consumptions,
			Notes:         fmt.Sprintf("Undelegation on block %d", e.BlockNumber),
		}

		if taoLot := t.taoLotFromSale(sale); taoLot != nil {
			sale.CreatedTaoLotID = taoLot.LotID
			taoLots = append(taoLots, taoLot)
		}
		sales = append(sales, sale)
	}

	if len(sales) == 0 {
		return nil, nil
	}

	if err := t.books.AppendSales(ctx, sales); err != nil {
		return nil, err
	}
	if err := t.books.AppendTaoLots(ctx, taoLots); err != nil {
		return nil, err
	}
	if err := t.books.ApplyAlphaLotUpdates(ctx, dedupUpdates(lotUpdates)); err != nil {
		return nil, err
	}
	t.state.lastSale = maxTimestamp(sales, func(s *ledger.Sale) int64 { return s.Timestamp })
	t.log.Info().Int("sales", len(sales)).Msg("processed sales")
	return sales, nil
}

// taoLotFromSale opens the TAO lot a sale creates: the received TAO net of
// the network fee, carried at the proceeds net of the fee's USD value.
func (t *Tracker) taoLotFromSale(s *ledger.Sale) *ledger.TaoLot {
	quantity := s.TaoReceived.Sub(s.NetworkFeeTao)
	if !quantity.IsPositive() {
		return nil
	}
	basis := s.USDProceeds.Sub(s.NetworkFeeUSD)
	return &ledger.TaoLot{
		LotID:        t.nextTaoLotID(),
		Timestamp:    s.Timestamp,
		BlockNumber:  s.BlockNumber,
		Quantity:     quantity,
		Remaining:    quantity,
		USDBasis:     basis,
		USDPerTao:    basis.Div(quantity),
		SourceSaleID: s.SaleID,
		Status:       ledger.StatusOpen,
		Notes:        fmt.Sprintf("From %s", s.SaleID),
	}
}

// ProcessExpenses handles ALPHA undelegated straight to third parties. The
// records get an empty category; journal generation blocks until someone
// fills it in.
func (t *Tracker) ProcessExpenses(ctx context.Context, lookback *int) ([]*ledger.Expense, error) {
	timer := telemetry.FromContext(ctx).Start("expenses")
	defer timer.End()

	window, err := ledger.ResolveWindow("expenses", t.state.lastExpense, lookback, t.now().Unix())
	if err != nil {
		return nil, err
	}

	isTransfer := true
	events, err := t.wallet.GetDelegations(ctx, t.opts.Wallet.NetUID, t.opts.Wallet.Hotkey, t.opts.Wallet.Coldkey,
		window.Start, window.End, &isTransfer)
	if err != nil {
		return nil, err
	}
	outgoing := lo.Filter(events, func(e taostats.DelegationEvent, _ int) bool {
		return t.classify(e) == KindExpense
	})
	if len(outgoing) == 0 {
		t.log.Info().Msg("no new expenses")
		return nil, nil
	}
	sort.Slice(outgoing, func(i, j int) bool { return outgoing[i].Timestamp < outgoing[j].Timestamp })

	lots, err := t.books.AlphaLots(ctx)
	if err != nil {
		return nil, err
	}

	var (
		expenses   []*ledger.Expense
		lotUpdates []ledger.LotUpdate
	)
	for _, e := range outgoing {
		taoPrice, err := t.prices.PriceAt(ctx, "TAO", e.Timestamp)
		if err != nil {
			if skippable(err) {
				t.log.Warn().Err(err).Str("extrinsic", e.ExtrinsicID).Msg("skipping expense")
				continue
			}
			return nil, err
		}

		// FMV of the ALPHA given up: the reported USD value when present,
		// otherwise through the ALPHA/TAO rate.
		proceeds := e.USD
		if !proceeds.IsPositive() {
			proceeds = e.Alpha.Mul(e.AlphaPriceInTao).Mul(taoPrice)
		}
		feeUSD := e.FeeTao.Mul(taoPrice)

		res, err := ledger.Consume(lots, ledger.ConsumeRequest{
			Asset:    "ALPHA",
			Quantity: e.Alpha,
			Strategy: t.opts.Strategy,
			AsOf:     e.Timestamp,
			Now:      t.now(),
		})
		if err != nil {
			if skippable(err) {
				t.log.Warn().Err(err).Str("extrinsic", e.ExtrinsicID).Msg("skipping expense")
				continue
			}
			return nil, err
		}
		lotUpdates = append(lotUpdates, res.Updates...)

		expected := expectedTao(e)
		expenses = append(expenses, &ledger.Expense{
			ExpenseID:       t.nextExpenseID(),
			Timestamp:       e.Timestamp,
			BlockNumber:     e.BlockNumber,
			AlphaQuantity:   e.Alpha,
			TaoReceived:     e.Tao,
			TaoExpected:     expected,
			SlippageTao:     expected.Sub(e.Tao),
			SlippageUSD:     expected.Sub(e.Tao).Mul(taoPrice),
			SlippageRatio:   slippageRatio(e, expected),
			TaoPriceUSD:     taoPrice,
			USDProceeds:     proceeds,
			CostBasisUSD:    res.CostBasis,
			RealizedGain:    proceeds.Sub(res.CostBasis).Sub(feeUSD),
			GainType:        res.GainType,
			NetworkFeeTao:   e.FeeTao,
			NetworkFeeUSD:   feeUSD,
			ExtrinsicID:     e.ExtrinsicID,
			TransferAddress: e.TransferAddress,
			ConsumedLots:    res.Consumptions,
			Notes:           fmt.Sprintf("Stake transfer to %s", e.TransferAddress),
		})
	}

	if len(expenses) == 0 {
		return nil, nil
	}

	if err := t.books.AppendExpenses(ctx, expenses); err != nil {
		return nil, err
	}
	if err := t.books.ApplyAlphaLotUpdates(ctx, dedupUpdates(lotUpdates)); err != nil {
		return nil, err
	}
	t.state.lastExpense = maxTimestamp(expenses, func(e *ledger.Expense) int64 { return e.Timestamp })
	t.log.Info().Int("expenses", len(expenses)).Msg("processed expenses")
	return expenses, nil
}

// ProcessTransfers handles TAO sent to the brokerage. Transfers sharing an
// extrinsic are folded into one disposal so a fee-only sibling never shows
// up as its own transfer; the consumed basis splits pro rata between the
// brokerage leg and the fees.
func (t *Tracker) ProcessTransfers(ctx context.Context, lookback *int) ([]*ledger.Transfer, error) {
	timer := telemetry.FromContext(ctx).Start("transfers")
	defer timer.End()

	window, err := ledger.ResolveWindow("transfers", t.state.lastTransfer, lookback, t.now().Unix())
	if err != nil {
		return nil, err
	}

	events, err := t.wallet.GetTransfers(ctx, t.opts.Wallet.Coldkey, window.Start, window.End, t.opts.Wallet.Coldkey, "")
	if err != nil {
		return nil, err
	}

	groups := lo.GroupBy(events, func(e taostats.TransferEvent) string { return e.ExtrinsicID })
	extrinsics := lo.Keys(groups)
	sort.Slice(extrinsics, func(i, j int) bool {
		return groups[extrinsics[i]][0].Timestamp < groups[extrinsics[j]][0].Timestamp
	})

	lots, err := t.books.TaoLots(ctx)
	if err != nil {
		return nil, err
	}

	var (
		transfers  []*ledger.Transfer
		lotUpdates []ledger.LotUpdate
	)
	for _, extrinsic := range extrinsics {
		group := groups[extrinsic]
		brokerage, found := lo.Find(group, func(e taostats.TransferEvent) bool {
			return e.To == t.opts.Wallet.Brokerage
		})
		if !found {
			continue
		}

		fees := lo.Reduce(group, func(acc decimal.Decimal, e taostats.TransferEvent, _ int) decimal.Decimal {
			return acc.Add(e.FeeTao)
		}, decimal.Zero)
		total := brokerage.AmountTao.Add(fees)

		taoPrice, err := t.prices.PriceAt(ctx, "TAO", brokerage.Timestamp)
		if err != nil {
			if skippable(err) {
				t.log.Warn().Err(err).Str("extrinsic", extrinsic).Msg("skipping transfer")
				continue
			}
			return nil, err
		}

		res, err := ledger.Consume(lots, ledger.ConsumeRequest{
			Asset:    "TAO",
			Quantity: total,
			Strategy: t.opts.Strategy,
			AsOf:     brokerage.Timestamp,
			Now:      t.now(),
		})
		if err != nil {
			if skippable(err) {
				t.log.Warn().Err(err).Str("extrinsic", extrinsic).Msg("skipping transfer")
				continue
			}
			return nil, err
		}
		lotUpdates = append(lotUpdates, res.Updates...)

		// The brokerage leg realizes gain; the fee share of the basis is
		// carried separately for the journal's fee posting.
		brokerageBasis := res.CostBasis.Mul(brokerage.AmountTao).Div(total)
		proceeds := brokerage.AmountTao.Mul(taoPrice)

		transfers = append(transfers, &ledger.Transfer{
			TransferID:      t.nextTransferID(),
			Timestamp:       brokerage.Timestamp,
			BlockNumber:     brokerage.BlockNumber,
			TaoAmount:       brokerage.AmountTao,
			TotalOutflowTao: total,
			FeeTao:          fees,
			TaoPriceUSD:     taoPrice,
			USDProceeds:     proceeds,
			CostBasisUSD:    brokerageBasis,
			FeeCostBasisUSD: res.CostBasis.Sub(brokerageBasis),
			RealizedGain:    proceeds.Sub(brokerageBasis),
			GainType:        res.GainType,
			TransactionHash: brokerage.TransactionHash,
			ExtrinsicID:     extrinsic,
			ConsumedLots:    res.Consumptions,
			Notes:           fmt.Sprintf("Transfer to brokerage on block %d", brokerage.BlockNumber),
		})
	}

	if len(transfers) == 0 {
		t.log.Info().Msg("no new brokerage transfers")
		return nil, nil
	}

	if err := t.books.AppendTransfers(ctx, transfers); err != nil {
		return nil, err
	}
	if err := t.books.ApplyTaoLotUpdates(ctx, dedupUpdates(lotUpdates)); err != nil {
		return nil, err
	}
	t.state.lastTransfer = maxTimestamp(transfers, func(tr *ledger.Transfer) int64 { return tr.Timestamp })
	t.log.Info().Int("transfers", len(transfers)).Msg("processed transfers")
	return transfers, nil
}

// expectedTao reverses slippage out of the received amount where possible:
// through the reported slippage ratio first, then the quoted ALPHA/TAO
// rate, falling back to the received amount when neither is usable.
func expectedTao(e taostats.DelegationEvent) decimal.Decimal {
	if e.Slippage != nil && e.Slippage.IsPositive() && e.Slippage.LessThan(one) {
		return e.Tao.Div(one.Sub(*e.Slippage))
	}
	if e.AlphaPriceInTao.IsPositive() {
		return e.Alpha.Mul(e.AlphaPriceInTao)
	}
	return e.Tao
}

func slippageRatio(e taostats.DelegationEvent, expected decimal.Decimal) decimal.Decimal {
	if e.Slippage != nil {
		return *e.Slippage
	}
	if expected.IsPositive() {
		return expected.Sub(e.Tao).Div(expected)
	}
	return decimal.Zero
}

// skippable reports whether an error fails only the single disposal.
func skippable(err error) bool {
	var insufficient *ledger.InsufficientLotsError
	var noPrice *prices.NotAvailableError
	return errors.As(err, &insufficient) || errors.As(err, &noPrice)
}

// dedupUpdates keeps only the final diff per row so a lot touched by
// several disposals in one batch flushes once.
func dedupUpdates(updates []ledger.LotUpdate) []ledger.LotUpdate {
	byRow := map[int]ledger.LotUpdate{}
	for _, u := range updates {
		byRow[u.Row] = u
	}
	out := lo.Values(byRow)
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}
