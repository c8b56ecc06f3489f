// Package tracker runs the batch pipeline: fetch chain activity for a
// wallet, turn it into cost-basis lots and disposals, and persist the
// result through the sheets ledger. Each transaction category keeps its own
// watermark timestamp so reruns pick up where the last one stopped.
package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/prices"
	"github.com/subtensorlabs/taobooks/sheets"
	"github.com/subtensorlabs/taobooks/taostats"
)

// WalletClient supplies the chain activity the tracker processes.
type WalletClient interface {
	GetDelegations(ctx context.Context, netuid int, delegate, nominator string, start, end int64, isTransfer *bool) ([]taostats.DelegationEvent, error)
	GetTransfers(ctx context.Context, account string, start, end int64, sender, receiver string) ([]taostats.TransferEvent, error)
	GetStakeBalanceHistory(ctx context.Context, netuid int, hotkey, coldkey string, start, end int64) ([]taostats.BalanceSnapshot, error)
}

// Wallet identifies the tracked wallet and its counterparties.
type Wallet struct {
	Hotkey        string
	Coldkey       string
	SmartContract string
	Brokerage     string
	NetUID        int
}

// Options configure a Tracker.
type Options struct {
	Wallet   Wallet
	Strategy ledger.Strategy

	// EmissionSource labels lots produced by the emission pass: Staking
	// for validator wallets, Mining for miner wallets.
	EmissionSource ledger.SourceType

	Accounts ledger.Accounts

	// Now anchors window resolution and holding-period checks. Nil means
	// time.Now.
	Now func() time.Time
}

// Tracker is the batch engine. Not safe for concurrent use: one run owns
// the lot state exclusively.
type Tracker struct {
	wallet WalletClient
	prices prices.Client
	books  *sheets.Ledger
	log    zerolog.Logger

	opts Options
	now  func() time.Time

	state runState
}

// runState holds the watermarks and ID counters reloaded from the sheets
// at startup.
type runState struct {
	lastContractIncome int64
	lastEmissionIncome int64
	lastSale           int64
	lastExpense        int64
	lastTransfer       int64

	alphaLotCounter int
	taoLotCounter   int
	saleCounter     int
	expenseCounter  int
	transferCounter int
}

func New(wallet WalletClient, priceClient prices.Client, books *sheets.Ledger, opts Options, log zerolog.Logger) (*Tracker, error) {
	if wallet == nil || priceClient == nil || books == nil {
		return nil, fmt.Errorf("tracker: wallet, price client, and ledger are all required")
	}
	if opts.Strategy == "" {
		opts.Strategy = ledger.FIFO
	}
	if opts.EmissionSource == "" {
		opts.EmissionSource = ledger.SourceStaking
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		wallet: wallet,
		prices: priceClient,
		books:  books,
		log:    log.With().Str("component", "tracker").Logger(),
		opts:   opts,
		now:    now,
	}, nil
}

// Init creates missing tables, reloads watermarks and counters from the
// existing rows, and reopens income lots when the sales table is empty
// (cleared disposal tables mean the lots must be replayable).
func (t *Tracker) Init(ctx context.Context) error {
	if err := t.books.Init(ctx); err != nil {
		return err
	}

	alphaLots, err := t.books.AlphaLots(ctx)
	if err != nil {
		return err
	}
	sales, err := t.books.Sales(ctx)
	if err != nil {
		return err
	}
	expenses, err := t.books.Expenses(ctx)
	if err != nil {
		return err
	}
	transfers, err := t.books.Transfers(ctx)
	if err != nil {
		return err
	}
	taoLots, err := t.books.TaoLots(ctx)
	if err != nil {
		return err
	}

	if len(sales) == 0 && len(alphaLots) > 0 {
		if err := t.books.ResetAlphaLots(ctx, alphaLots); err != nil {
			return fmt.Errorf("reopening income lots: %w", err)
		}
		t.log.Info().Int("lots", len(alphaLots)).Msg("sales table empty, reopened income lots")
	}

	t.state = loadState(alphaLots, taoLots, sales, expenses, transfers)
	t.log.Debug().
		Int64("contract_watermark", t.state.lastContractIncome).
		Int64("emission_watermark", t.state.lastEmissionIncome).
		Int("alpha_counter", t.state.alphaLotCounter).
		Msg("state loaded")
	return nil
}

func loadState(alphaLots []*ledger.AlphaLot, taoLots []*ledger.TaoLot, sales []*ledger.Sale, expenses []*ledger.Expense, transfers []*ledger.Transfer) runState {
	var s runState
	for _, lot := range alphaLots {
		if lot.Source == ledger.SourceContract {
			s.lastContractIncome = max(s.lastContractIncome, lot.Timestamp)
		} else {
			s.lastEmissionIncome = max(s.lastEmissionIncome, lot.Timestamp)
		}
		s.alphaLotCounter = max(s.alphaLotCounter, idNumber(lot.LotID, "ALPHA-"))
	}
	for _, lot := range taoLots {
		s.taoLotCounter = max(s.taoLotCounter, idNumber(lot.LotID, "TAO-"))
	}
	for _, sale := range sales {
		s.lastSale = max(s.lastSale, sale.Timestamp)
		s.saleCounter = max(s.saleCounter, idNumber(sale.SaleID, "SALE-"))
	}
	for _, e := range expenses {
		s.lastExpense = max(s.lastExpense, e.Timestamp)
		s.expenseCounter = max(s.expenseCounter, idNumber(e.ExpenseID, "EXP-"))
	}
	for _, tr := range transfers {
		s.lastTransfer = max(s.lastTransfer, tr.Timestamp)
		s.transferCounter = max(s.transferCounter, idNumber(tr.TransferID, "XFER-"))
	}
	return s
}

func idNumber(id, prefix string) int {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

func (t *Tracker) nextAlphaLotID() string {
	t.state.alphaLotCounter++
	return fmt.Sprintf("ALPHA-%04d", t.state.alphaLotCounter)
}

func (t *Tracker) nextTaoLotID() string {
	t.state.taoLotCounter++
	return fmt.Sprintf("TAO-%04d", t.state.taoLotCounter)
}

func (t *Tracker) nextSaleID() string {
	t.state.saleCounter++
	return fmt.Sprintf("SALE-%04d", t.state.saleCounter)
}

func (t *Tracker) nextExpenseID() string {
	t.state.expenseCounter++
	return fmt.Sprintf("EXP-%04d", t.state.expenseCounter)
}

func (t *Tracker) nextTransferID() string {
	t.state.transferCounter++
	return fmt.Sprintf("XFER-%04d", t.state.transferCounter)
}

// Run executes every processing phase in order. Lookback overrides the
// watermarks; nil resumes from them.
func (t *Tracker) Run(ctx context.Context, lookback *int) error {
	if _, err := t.ProcessContractIncome(ctx, lookback); err != nil {
		return fmt.Errorf("contract income: %w", err)
	}
	if _, err := t.ProcessEmissions(ctx, lookback); err != nil {
		return fmt.Errorf("emissions: %w", err)
	}
	if _, err := t.ProcessSales(ctx, lookback); err != nil {
		return fmt.Errorf("sales: %w", err)
	}
	if _, err := t.ProcessExpenses(ctx, lookback); err != nil {
		return fmt.Errorf("expenses: %w", err)
	}
	if _, err := t.ProcessTransfers(ctx, lookback); err != nil {
		return fmt.Errorf("transfers: %w", err)
	}
	return nil
}

func maxTimestamp[T any](items []T, ts func(T) int64) int64 {
	return lo.Reduce(items, func(acc int64, item T, _ int) int64 {
		return max(acc, ts(item))
	}, 0)
}
