package tracker

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/prices"
	"github.com/subtensorlabs/taobooks/taostats"
	"github.com/subtensorlabs/taobooks/telemetry"
)

// emissionNoise filters dust deltas from the chain's reward distribution.
var emissionNoise = decimal.RequireFromString("0.0001")

// ProcessContractIncome creates an income lot for every stake transfer
// received from the payment contract inside the window.
func (t *Tracker) ProcessContractIncome(ctx context.Context, lookback *int) ([]*ledger.AlphaLot, error) {
	timer := telemetry.FromContext(ctx).Start("contract income")
	defer timer.End()

	window, err := ledger.ResolveWindow("contract income", t.state.lastContractIncome, lookback, t.now().Unix())
	if err != nil {
		return nil, err
	}

	isTransfer := true
	events, err := t.wallet.GetDelegations(ctx, t.opts.Wallet.NetUID, t.opts.Wallet.Hotkey, t.opts.Wallet.Coldkey,
		window.Start, window.End, &isTransfer)
	if err != nil {
		return nil, err
	}

	lots := lo.FilterMap(events, func(e taostats.DelegationEvent, _ int) (*ledger.AlphaLot, bool) {
		if t.classify(e) != KindContractIncome {
			return nil, false
		}
		return &ledger.AlphaLot{
			LotID:           t.nextAlphaLotID(),
			Timestamp:       e.Timestamp,
			BlockNumber:     e.BlockNumber,
			Source:          ledger.SourceContract,
			Quantity:        e.Alpha,
			Remaining:       e.Alpha,
			USDFMV:          e.USD,
			USDPerAlpha:     e.AlphaPriceInUSD,
			TaoEquivalent:   e.Tao,
			ExtrinsicID:     e.ExtrinsicID,
			TransferAddress: e.TransferAddress,
			Status:          ledger.StatusOpen,
			Notes:           fmt.Sprintf("Smart contract delegation on block %d", e.BlockNumber),
		}, true
	})

	if len(lots) == 0 {
		t.log.Info().Msg("no new contract income")
		return nil, nil
	}

	if err := t.books.AppendAlphaLots(ctx, lots); err != nil {
		return nil, err
	}
	t.state.lastContractIncome = maxTimestamp(lots, func(l *ledger.AlphaLot) int64 { return l.Timestamp })
	t.log.Info().Int("lots", len(lots)).Msg("created contract income lots")
	return lots, nil
}

// ProcessEmissions derives daily staking or mining emissions from stake
// balance deltas, adjusted for explicit stake movements, and values them
// with a single bulk price fetch.
func (t *Tracker) ProcessEmissions(ctx context.Context, lookback *int) ([]*ledger.AlphaLot, error) {
	timer := telemetry.FromContext(ctx).Start("emissions")
	defer timer.End()

	window, err := ledger.ResolveWindow("emissions", t.state.lastEmissionIncome, lookback, t.now().Unix())
	if err != nil {
		return nil, err
	}

	snapshots, err := t.wallet.GetStakeBalanceHistory(ctx, t.opts.Wallet.NetUID, t.opts.Wallet.Hotkey, t.opts.Wallet.Coldkey,
		window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		t.log.Info().Msg("no stake balance history")
		return nil, nil
	}

	delegations, err := t.wallet.GetDelegations(ctx, t.opts.Wallet.NetUID, t.opts.Wallet.Hotkey, t.opts.Wallet.Coldkey,
		window.Start, window.End, nil)
	if err != nil {
		return nil, err
	}

	emissions := dailyEmissions(snapshots, delegations)
	if len(emissions) == 0 {
		t.log.Info().Msg("no emissions found")
		return nil, nil
	}

	quotes, err := t.prices.PricesInRange(ctx, "TAO", window.Start, window.End)
	if err != nil {
		return nil, err
	}

	var lots []*ledger.AlphaLot
	for _, em := range emissions {
		quote, ok := prices.Nearest(quotes, em.snapshot.Timestamp)
		if !ok {
			t.log.Warn().Str("day", em.day).Msg("no TAO quote for emission day, skipping")
			continue
		}

		// Value the emission through the snapshot's own ALPHA/TAO rate.
		taoEquivalent := decimal.Zero
		if em.snapshot.AlphaBalance.IsPositive() {
			taoEquivalent = em.alpha.Mul(em.snapshot.TaoEquivalent).Div(em.snapshot.AlphaBalance)
		}
		fmv := taoEquivalent.Mul(quote.Price)

		lots = append(lots, &ledger.AlphaLot{
			LotID:         t.nextAlphaLotID(),
			Timestamp:     em.snapshot.Timestamp,
			BlockNumber:   em.snapshot.BlockNumber,
			Source:        t.opts.EmissionSource,
			Quantity:      em.alpha,
			Remaining:     em.alpha,
			USDFMV:        fmv,
			USDPerAlpha:   fmv.Div(em.alpha),
			TaoEquivalent: taoEquivalent,
			Status:        ledger.StatusOpen,
			Notes:         fmt.Sprintf("%s emissions for %s", t.opts.EmissionSource, em.day),
		})
	}

	if len(lots) == 0 {
		return nil, nil
	}

	if err := t.books.AppendAlphaLots(ctx, lots); err != nil {
		return nil, err
	}
	t.state.lastEmissionIncome = maxTimestamp(lots, func(l *ledger.AlphaLot) int64 { return l.Timestamp })
	t.log.Info().Int("lots", len(lots)).Msg("created emission lots")
	return lots, nil
}

type dailyEmission struct {
	day      string
	alpha    decimal.Decimal
	snapshot taostats.BalanceSnapshot
}

// dailyEmissions diffs each day's closing balance against the previous
// day's, backing out explicit stake movements:
//
//	emission = balance delta - delegated in + undelegated out
//
// Only positive deltas above the noise threshold become emissions.
func dailyEmissions(snapshots []taostats.BalanceSnapshot, delegations []taostats.DelegationEvent) []dailyEmission {
	latestByDay := map[string]taostats.BalanceSnapshot{}
	for _, snap := range snapshots {
		day := snap.Day()
		if cur, ok := latestByDay[day]; !ok || snap.Timestamp > cur.Timestamp {
			latestByDay[day] = snap
		}
	}

	delegationsByDay := lo.GroupBy(delegations, func(e taostats.DelegationEvent) string { return e.Day() })

	days := lo.Keys(latestByDay)
	sort.Strings(days)

	var out []dailyEmission
	for i := 1; i < len(days); i++ {
		prev, cur := latestByDay[days[i-1]], latestByDay[days[i]]
		delta := cur.AlphaBalance.Sub(prev.AlphaBalance)

		for _, e := range delegationsByDay[days[i]] {
			switch e.Action {
			case "DELEGATE":
				delta = delta.Sub(e.Alpha)
			case "UNDELEGATE":
				delta = delta.Add(e.Alpha)
			}
		}

		if delta.GreaterThan(emissionNoise) {
			out = append(out, dailyEmission{day: days[i], alpha: delta, snapshot: cur})
		}
	}
	return out
}
