package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// materiality is the smallest absolute amount worth posting. Anything below
// it rounds to zero at two decimal places anyway.
var materiality = decimal.RequireFromString("0.005")

// Summary totals a month's activity for reporting alongside the journal.
type Summary struct {
	Month string

	ContractIncome decimal.Decimal
	StakingIncome  decimal.Decimal
	MiningIncome   decimal.Decimal

	SalesProceeds decimal.Decimal
	SalesGain     decimal.Decimal
	SalesSlippage decimal.Decimal
	SalesFees     decimal.Decimal

	ExpenseProceeds decimal.Decimal
	ExpenseGain     decimal.Decimal

	TransferGain decimal.Decimal
	TransferFees decimal.Decimal
}

// JournalInput carries one month's records into the aggregator. Records
// outside the window are filtered out, so callers may pass full sheets.
type JournalInput struct {
	Month     string // "YYYY-MM"
	Window    Window // zero value means the calendar month of Month
	Income    []*AlphaLot
	Sales     []*Sale
	Expenses  []*Expense
	Transfers []*Transfer
	Accounts  Accounts
}

// BuildMonthlyJournal aggregates a month's income, sales, expenses, and
// transfers into balanced double-entry journal postings.
//
// Income is posted gross per source. Disposals post proceeds against the
// receiving asset and consumed basis against the disposed asset, with
// network fees broken out to the fee account. Realized gains are netted
// into short-term and long-term buckets and posted last; the short-term
// posting absorbs any penny left over from rounding so the journal always
// balances exactly.
//
// Expenses without a category abort the whole month with an
// *UncategorizedExpensesError before any entry is produced.
func BuildMonthlyJournal(in JournalInput) ([]JournalEntry, *Summary, error) {
	win := in.Window
	if win == (Window{}) {
		var err error
		win, err = MonthWindow(in.Month)
		if err != nil {
			return nil, nil, err
		}
	}

	income := lo.Filter(in.Income, func(l *AlphaLot, _ int) bool { return win.Contains(l.Timestamp) })
	sales := lo.Filter(in.Sales, func(s *Sale, _ int) bool { return win.Contains(s.Timestamp) })
	expenses := lo.Filter(in.Expenses, func(e *Expense, _ int) bool { return win.Contains(e.Timestamp) })
	transfers := lo.Filter(in.Transfers, func(t *Transfer, _ int) bool { return win.Contains(t.Timestamp) })

	if uncategorized := lo.FilterMap(expenses, func(e *Expense, _ int) (string, bool) {
		return e.ExpenseID, e.Category == ""
	}); len(uncategorized) > 0 {
		sort.Strings(uncategorized)
		return nil, nil, NewUncategorizedExpensesError(in.Month, uncategorized)
	}

	b := journalBuilder{month: in.Month, accounts: in.Accounts}
	sum := &Summary{Month: in.Month}
	gains := map[GainType]decimal.Decimal{ShortTerm: decimal.Zero, LongTerm: decimal.Zero}

	// Income, one posting pair per source.
	bySource := lo.GroupBy(income, func(l *AlphaLot) SourceType { return l.Source })
	for _, src := range []SourceType{SourceContract, SourceStaking, SourceMining} {
		lots := bySource[src]
		if len(lots) == 0 {
			continue
		}
		total := lo.Reduce(lots, func(acc decimal.Decimal, l *AlphaLot, _ int) decimal.Decimal {
			return acc.Add(l.USDFMV)
		}, decimal.Zero)

		desc := fmt.Sprintf("%s income (%d lots)", src, len(lots))
		b.debit("Income", in.Accounts.AlphaAsset, total, desc)
		b.credit("Income", in.Accounts.IncomeAccount(src), total, desc)

		switch src {
		case SourceContract:
			sum.ContractIncome = total
		case SourceStaking:
			sum.StakingIncome = total
		case SourceMining:
			sum.MiningIncome = total
		}
	}

	// ALPHA sales: TAO received at proceeds, ALPHA relieved at basis.
	if len(sales) > 0 {
		var proceeds, basis, fees decimal.Decimal
		for _, s := range sales {
			proceeds = proceeds.Add(s.USDProceeds)
			basis = basis.Add(s.CostBasisUSD)
			fees = fees.Add(s.NetworkFeeUSD)
			gains[s.GainType] = gains[s.GainType].Add(s.RealizedGain)
			sum.SalesSlippage = sum.SalesSlippage.Add(s.SlippageUSD)
			sum.SalesGain = sum.SalesGain.Add(s.RealizedGain)
		}
		sum.SalesProceeds = proceeds
		sum.SalesFees = fees

		b.debit("Sale", in.Accounts.TaoAsset, proceeds, fmt.Sprintf("ALPHA sale proceeds (%d sales)", len(sales)))
		b.credit("Sale", in.Accounts.AlphaAsset, basis, "ALPHA basis relieved by sales")
		// Fees come out of the TAO received, so the TAO asset account nets
		// to proceeds minus fees, matching the basis of the opened TAO lot.
		b.debit("Sale", in.Accounts.BlockchainFee, fees, "Network fees on sales")
		b.credit("Sale", in.Accounts.TaoAsset, fees, "Network fees on sales")
	}

	// Expenses: debit each category, relieve ALPHA at basis.
	if len(expenses) > 0 {
		var basis, fees decimal.Decimal
		byCategory := lo.GroupBy(expenses, func(e *Expense) string { return e.Category })
		categories := lo.Keys(byCategory)
		sort.Strings(categories)
		for _, cat := range categories {
			total := lo.Reduce(byCategory[cat], func(acc decimal.Decimal, e *Expense, _ int) decimal.Decimal {
				return acc.Add(e.USDProceeds)
			}, decimal.Zero)
			b.debit("Expense", cat, total, fmt.Sprintf("ALPHA spent on %s (%d)", cat, len(byCategory[cat])))
			sum.ExpenseProceeds = sum.ExpenseProceeds.Add(total)
		}
		for _, e := range expenses {
			basis = basis.Add(e.CostBasisUSD)
			fees = fees.Add(e.NetworkFeeUSD)
			gains[e.GainType] = gains[e.GainType].Add(e.RealizedGain)
			sum.ExpenseGain = sum.ExpenseGain.Add(e.RealizedGain)
		}
		b.credit("Expense", in.Accounts.AlphaAsset, basis, "ALPHA basis relieved by expenses")
		b.debit("Expense", in.Accounts.BlockchainFee, fees, "Network fees on expenses")
		b.credit("Expense", in.Accounts.AlphaAsset, fees, "Network fees on expenses")
	}

	// TAO transfers out to the brokerage.
	if len(transfers) > 0 {
		var proceeds, basis, feeBasis decimal.Decimal
		for _, t := range transfers {
			proceeds = proceeds.Add(t.USDProceeds)
			basis = basis.Add(t.CostBasisUSD)
			feeBasis = feeBasis.Add(t.FeeCostBasisUSD)
			gains[t.GainType] = gains[t.GainType].Add(t.RealizedGain)
			sum.TransferGain = sum.TransferGain.Add(t.RealizedGain)
		}
		sum.TransferFees = feeBasis

		b.debit("Transfer", in.Accounts.TransferProceeds, proceeds, fmt.Sprintf("TAO transferred to brokerage (%d transfers)", len(transfers)))
		b.credit("Transfer", in.Accounts.TaoAsset, basis, "TAO basis relieved by transfers")
		b.debit("Transfer", in.Accounts.BlockchainFee, feeBasis, "Network fees on transfers")
		b.credit("Transfer", in.Accounts.TaoAsset, feeBasis, "Network fees on transfers")
	}

	// Net realized gains post per holding period bucket.
	for _, gt := range []GainType{LongTerm, ShortTerm} {
		net := gains[gt].Round(2)
		if net.Abs().LessThan(materiality) {
			continue
		}
		desc := fmt.Sprintf("Net %s realized gain", strings.ToLower(string(gt)))
		if net.Sign() < 0 {
			desc = fmt.Sprintf("Net %s realized loss", strings.ToLower(string(gt)))
			b.debit("Gain", in.Accounts.GainAccount(gt, net), net.Abs(), desc)
		} else {
			b.credit("Gain", in.Accounts.GainAccount(gt, net), net, desc)
		}
	}

	b.reconcile(in.Accounts)

	return b.entries, sum, nil
}

// reconcile folds any residual debit/credit imbalance into the short-term
// gain posting so the journal always balances exactly. Residue comes from
// per-entry rounding and from network fees, which reduce realized gains but
// also post as their own expense entries.
func (b *journalBuilder) reconcile(accounts Accounts) {
	residue := b.debitTotal.Sub(b.creditTotal)
	if residue.IsZero() {
		return
	}

	for i := len(b.entries) - 1; i >= 0; i-- {
		e := &b.entries[i]
		if e.EntryType != "Gain" {
			continue
		}
		if e.Account != accounts.ShortTermGain && e.Account != accounts.ShortTermLoss {
			continue
		}

		// Fold the residue into the posting, flipping sides if it
		// overwhelms the original amount.
		net := e.Credit.Sub(e.Debit).Add(residue)
		if net.Sign() >= 0 {
			e.Credit = net
			e.Debit = decimal.Zero
		} else {
			e.Debit = net.Neg()
			e.Credit = decimal.Zero
		}
		e.Description += " (rounding adjustment)"
		return
	}

	entry := JournalEntry{
		Month:       b.month,
		EntryType:   "Gain",
		Account:     accounts.GainAccount(ShortTerm, residue),
		Description: "Rounding adjustment",
		Debit:       decimal.Zero,
		Credit:      decimal.Zero,
	}
	if residue.Sign() > 0 {
		entry.Credit = residue
	} else {
		entry.Debit = residue.Neg()
	}
	b.entries = append(b.entries, entry)
}

// journalBuilder accumulates rounded postings and running totals.
type journalBuilder struct {
	month       string
	accounts    Accounts
	entries     []JournalEntry
	debitTotal  decimal.Decimal
	creditTotal decimal.Decimal
}

func (b *journalBuilder) debit(typ, account string, amount decimal.Decimal, desc string) {
	amount = amount.Round(2)
	if amount.Abs().LessThan(materiality) {
		return
	}
	b.entries = append(b.entries, JournalEntry{
		Month:       b.month,
		EntryType:   typ,
		Account:     account,
		Debit:       amount,
		Credit:      decimal.Zero,
		Description: desc,
	})
	b.debitTotal = b.debitTotal.Add(amount)
}

func (b *journalBuilder) credit(typ, account string, amount decimal.Decimal, desc string) {
	amount = amount.Round(2)
	if amount.Abs().LessThan(materiality) {
		return
	}
	b.entries = append(b.entries, JournalEntry{
		Month:       b.month,
		EntryType:   typ,
		Account:     account,
		Debit:       decimal.Zero,
		Credit:      amount,
		Description: desc,
	})
	b.creditTotal = b.creditTotal.Add(amount)
}
