package sheets

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/subtensorlabs/taobooks/ledger"
)

// Ledger is the typed view of the spreadsheet: it owns the table schemas
// and translates between rows and ledger records. All writes that add
// transactions re-sort the table by timestamp so rows stay chronological
// regardless of fetch order.
type Ledger struct {
	store RowStore
}

func NewLedger(store RowStore) *Ledger {
	return &Ledger{store: store}
}

// Init creates any missing tables with their header rows.
func (l *Ledger) Init(ctx context.Context) error {
	tables := []struct {
		name    string
		headers []string
	}{
		{TableIncome, incomeHeaders},
		{TableSales, salesHeaders},
		{TableExpenses, expenseHeaders},
		{TableTransfers, transferHeaders},
		{TableJournal, journalHeaders},
		{TableTaoLots, taoLotHeaders},
	}
	for _, t := range tables {
		if err := l.store.EnsureTable(ctx, t.name, t.headers); err != nil {
			return fmt.Errorf("ensure table %s: %w", t.name, err)
		}
	}
	return nil
}

// AlphaLots loads every income lot. Each lot carries its data row number
// so later drawdowns can be written back as point updates.
func (l *Ledger) AlphaLots(ctx context.Context) ([]*ledger.AlphaLot, error) {
	rows, err := l.store.ReadAll(ctx, TableIncome)
	if err != nil {
		return nil, err
	}
	lots := make([]*ledger.AlphaLot, len(rows))
	for i, r := range rows {
		lots[i] = decodeAlphaLot(r, i+1)
	}
	return lots, nil
}

func (l *Ledger) TaoLots(ctx context.Context) ([]*ledger.TaoLot, error) {
	rows, err := l.store.ReadAll(ctx, TableTaoLots)
	if err != nil {
		return nil, err
	}
	lots := make([]*ledger.TaoLot, len(rows))
	for i, r := range rows {
		lots[i] = decodeTaoLot(r, i+1)
	}
	return lots, nil
}

func (l *Ledger) Sales(ctx context.Context) ([]*ledger.Sale, error) {
	rows, err := l.store.ReadAll(ctx, TableSales)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r Row, _ int) *ledger.Sale { return decodeSale(r) }), nil
}

func (l *Ledger) Expenses(ctx context.Context) ([]*ledger.Expense, error) {
	rows, err := l.store.ReadAll(ctx, TableExpenses)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r Row, _ int) *ledger.Expense { return decodeExpense(r) }), nil
}

func (l *Ledger) Transfers(ctx context.Context) ([]*ledger.Transfer, error) {
	rows, err := l.store.ReadAll(ctx, TableTransfers)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r Row, _ int) *ledger.Transfer { return decodeTransfer(r) }), nil
}

func (l *Ledger) JournalEntries(ctx context.Context) ([]*ledger.JournalEntry, error) {
	rows, err := l.store.ReadAll(ctx, TableJournal)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r Row, _ int) *ledger.JournalEntry { return decodeJournalEntry(r) }), nil
}

func (l *Ledger) AppendAlphaLots(ctx context.Context, lots []*ledger.AlphaLot) error {
	if len(lots) == 0 {
		return nil
	}
	rows := lo.Map(lots, func(lot *ledger.AlphaLot, _ int) Row { return encodeAlphaLot(lot) })
	if err := l.store.Append(ctx, TableIncome, rows); err != nil {
		return err
	}
	return l.store.SortByColumn(ctx, TableIncome, incomeTimestampCol)
}

func (l *Ledger) AppendTaoLots(ctx context.Context, lots []*ledger.TaoLot) error {
	if len(lots) == 0 {
		return nil
	}
	rows := lo.Map(lots, func(lot *ledger.TaoLot, _ int) Row { return encodeTaoLot(lot) })
	if err := l.store.Append(ctx, TableTaoLots, rows); err != nil {
		return err
	}
	return l.store.SortByColumn(ctx, TableTaoLots, taoLotTimestampCol)
}

func (l *Ledger) AppendSales(ctx context.Context, sales []*ledger.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	rows := lo.Map(sales, func(s *ledger.Sale, _ int) Row { return encodeSale(s) })
	if err := l.store.Append(ctx, TableSales, rows); err != nil {
		return err
	}
	return l.store.SortByColumn(ctx, TableSales, salesTimestampCol)
}

func (l *Ledger) AppendExpenses(ctx context.Context, expenses []*ledger.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	rows := lo.Map(expenses, func(e *ledger.Expense, _ int) Row { return encodeExpense(e) })
	if err := l.store.Append(ctx, TableExpenses, rows); err != nil {
		return err
	}
	return l.store.SortByColumn(ctx, TableExpenses, expenseTimestampCol)
}

func (l *Ledger) AppendTransfers(ctx context.Context, transfers []*ledger.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	rows := lo.Map(transfers, func(t *ledger.Transfer, _ int) Row { return encodeTransfer(t) })
	if err := l.store.Append(ctx, TableTransfers, rows); err != nil {
		return err
	}
	return l.store.SortByColumn(ctx, TableTransfers, transferTimestampCol)
}

// ApplyAlphaLotUpdates writes drawdown diffs back to the income table as
// point updates against the Remaining and Status cells.
func (l *Ledger) ApplyAlphaLotUpdates(ctx context.Context, updates []ledger.LotUpdate) error {
	return l.applyLotUpdates(ctx, TableIncome, incomeRemainingCol, incomeStatusCol, updates)
}

func (l *Ledger) ApplyTaoLotUpdates(ctx context.Context, updates []ledger.LotUpdate) error {
	return l.applyLotUpdates(ctx, TableTaoLots, taoLotRemainingCol, taoLotStatusCol, updates)
}

func (l *Ledger) applyLotUpdates(ctx context.Context, table string, remainingCol, statusCol int, updates []ledger.LotUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	cells := make([]CellUpdate, 0, len(updates)*2)
	for _, u := range updates {
		if u.Row < 1 {
			return fmt.Errorf("lot %s has no row reference", u.LotID)
		}
		cells = append(cells,
			CellUpdate{Row: u.Row, Col: remainingCol, Value: u.NewRemaining.String()},
			CellUpdate{Row: u.Row, Col: statusCol, Value: string(u.NewStatus)},
		)
	}
	return l.store.UpdateCells(ctx, table, cells)
}

// ResetAlphaLots reopens every income lot, restoring full remaining
// quantities. Used when the disposal tables are empty and the lots must be
// replayed from scratch.
func (l *Ledger) ResetAlphaLots(ctx context.Context, lots []*ledger.AlphaLot) error {
	updates := make([]ledger.LotUpdate, 0, len(lots))
	for _, lot := range lots {
		if lot.Status == ledger.StatusOpen && lot.Remaining.Equal(lot.Quantity) {
			continue
		}
		ledger.Reopen(lot)
		updates = append(updates, ledger.LotUpdate{
			LotID:        lot.LotID,
			Row:          lot.Row,
			NewRemaining: lot.Remaining,
			NewStatus:    lot.Status,
		})
	}
	return l.ApplyAlphaLotUpdates(ctx, updates)
}

// ReplaceJournalMonth swaps out all journal rows for one month, keeping the
// other months' rows in place.
func (l *Ledger) ReplaceJournalMonth(ctx context.Context, month string, entries []*ledger.JournalEntry) error {
	rows, err := l.store.ReadAll(ctx, TableJournal)
	if err != nil {
		return err
	}
	kept := lo.Filter(rows, func(r Row, _ int) bool { return cell(r, 1) != month })
	for _, e := range entries {
		if e.Month != month {
			return fmt.Errorf("entry for %s in journal batch for %s", e.Month, month)
		}
		kept = append(kept, encodeJournalEntry(e))
	}
	return l.store.Replace(ctx, TableJournal, kept)
}

// HasJournalMonth reports whether the journal already holds entries for a
// month.
func (l *Ledger) HasJournalMonth(ctx context.Context, month string) (bool, error) {
	rows, err := l.store.ReadAll(ctx, TableJournal)
	if err != nil {
		return false, err
	}
	return lo.SomeBy(rows, func(r Row) bool { return cell(r, 1) == month }), nil
}
