package sheets

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtensorlabs/taobooks/ledger"
)

// Table names inside the spreadsheet.
const (
	TableIncome    = "Income"
	TableSales     = "Sales"
	TableExpenses  = "Expenses"
	TableTransfers = "Transfers"
	TableJournal   = "Journal Entries"
	TableTaoLots   = "TAO Lots"
)

// Column positions (1-based) needed for point updates and sorting.
const (
	incomeTimestampCol = 3
	incomeRemainingCol = 9
	incomeStatusCol    = 14

	taoLotTimestampCol = 3
	taoLotRemainingCol = 6
	taoLotStatusCol    = 11

	salesTimestampCol    = 3
	expenseTimestampCol  = 3
	transferTimestampCol = 3
)

var incomeHeaders = []string{
	"Lot ID", "Date", "Timestamp", "Block", "Source Type",
	"Transfer Address", "Extrinsic ID", "Alpha Quantity",
	"Alpha Remaining", "USD FMV", "USD/Alpha", "TAO Equivalent",
	"Long Term Date", "Status", "Notes",
}

var taoLotHeaders = []string{
	"TAO Lot ID", "Date", "Timestamp", "Block", "TAO Quantity",
	"TAO Remaining", "USD Basis", "USD/TAO", "Source Sale ID",
	"Extrinsic ID", "Status", "Notes",
}

var salesHeaders = []string{
	"Sale ID", "Date", "Timestamp", "Block", "Alpha Disposed",
	"TAO Received", "TAO Price USD", "USD Proceeds", "Cost Basis",
	"Realized Gain/Loss", "Gain Type", "TAO Expected", "TAO Slippage",
	"Slippage USD", "Slippage Ratio",
	"Network Fee (TAO)", "Network Fee (USD)",
	"Consumed Lots", "Created TAO Lot ID", "Extrinsic ID", "Notes",
}

var transferHeaders = []string{
	"Transfer ID", "Date", "Timestamp", "Block", "TAO Amount",
	"TAO Price USD", "USD Proceeds", "Cost Basis", "Realized Gain/Loss",
	"Gain Type", "Consumed TAO Lots", "Transaction Hash",
	"Extrinsic ID", "Notes", "Total Outflow TAO", "Fee TAO",
	"Fee Cost Basis USD",
}

var expenseHeaders = []string{
	"Expense ID", "Date", "Timestamp", "Block", "Transfer Address", "Category",
	"Alpha Disposed", "TAO Received", "TAO Price USD", "USD Proceeds",
	"Cost Basis", "Realized Gain/Loss", "Gain Type", "TAO Expected",
	"TAO Slippage", "Slippage USD", "Slippage Ratio",
	"Network Fee (TAO)", "Network Fee (USD)",
	"Consumed Lots", "Created TAO Lot ID", "Extrinsic ID", "Notes",
}

var journalHeaders = []string{"Month", "Entry Type", "Account", "Debit", "Credit", "Description"}

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}

func formatLongTermDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Add(ledger.LongTermHolding).Format("2006-01-02")
}

func cell(r Row, col int) string {
	if col < 1 || col > len(r) {
		return ""
	}
	return strings.TrimSpace(r[col-1])
}

func parseDec(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

// encodeConsumptions renders lot consumptions as "LOT-0001:5.0000, ..." so
// they stay legible in the sheet.
func encodeConsumptions(cs []ledger.LotConsumption) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = fmt.Sprintf("%s:%s", c.LotID, c.Quantity.StringFixed(4))
	}
	return strings.Join(parts, ", ")
}

func decodeConsumptions(s string) []ledger.LotConsumption {
	var out []ledger.LotConsumption
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, qty, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		out = append(out, ledger.LotConsumption{LotID: id, Quantity: parseDec(qty)})
	}
	return out
}

func encodeAlphaLot(l *ledger.AlphaLot) Row {
	return Row{
		l.LotID,
		formatTime(l.Timestamp),
		strconv.FormatInt(l.Timestamp, 10),
		strconv.FormatInt(l.BlockNumber, 10),
		string(l.Source),
		l.TransferAddress,
		l.ExtrinsicID,
		l.Quantity.String(),
		l.Remaining.String(),
		l.USDFMV.String(),
		l.USDPerAlpha.String(),
		l.TaoEquivalent.String(),
		formatLongTermDate(l.Timestamp),
		string(l.Status),
		l.Notes,
	}
}

func decodeAlphaLot(r Row, rowNum int) *ledger.AlphaLot {
	l := &ledger.AlphaLot{
		LotID:           cell(r, 1),
		Timestamp:       parseInt(cell(r, 3)),
		BlockNumber:     parseInt(cell(r, 4)),
		Source:          ledger.SourceType(cell(r, 5)),
		TransferAddress: cell(r, 6),
		ExtrinsicID:     cell(r, 7),
		Quantity:        parseDec(cell(r, 8)),
		Remaining:       parseDec(cell(r, 9)),
		USDFMV:          parseDec(cell(r, 10)),
		USDPerAlpha:     parseDec(cell(r, 11)),
		TaoEquivalent:   parseDec(cell(r, 12)),
		Status:          ledger.LotStatus(cell(r, 14)),
		Notes:           cell(r, 15),
		Row:             rowNum,
	}
	ledger.NormalizeStatus(l)
	return l
}

func encodeTaoLot(l *ledger.TaoLot) Row {
	return Row{
		l.LotID,
		formatTime(l.Timestamp),
		strconv.FormatInt(l.Timestamp, 10),
		strconv.FormatInt(l.BlockNumber, 10),
		l.Quantity.String(),
		l.Remaining.String(),
		l.USDBasis.String(),
		l.USDPerTao.String(),
		l.SourceSaleID,
		"",
		string(l.Status),
		l.Notes,
	}
}

func decodeTaoLot(r Row, rowNum int) *ledger.TaoLot {
	l := &ledger.TaoLot{
		LotID:        cell(r, 1),
		Timestamp:    parseInt(cell(r, 3)),
		BlockNumber:  parseInt(cell(r, 4)),
		Quantity:     parseDec(cell(r, 5)),
		Remaining:    parseDec(cell(r, 6)),
		USDBasis:     parseDec(cell(r, 7)),
		USDPerTao:    parseDec(cell(r, 8)),
		SourceSaleID: cell(r, 9),
		Status:       ledger.LotStatus(cell(r, 11)),
		Notes:        cell(r, 12),
		Row:          rowNum,
	}
	ledger.NormalizeStatus(l)
	return l
}

func encodeSale(s *ledger.Sale) Row {
	return Row{
		s.SaleID,
		formatTime(s.Timestamp),
		strconv.FormatInt(s.Timestamp, 10),
		strconv.FormatInt(s.BlockNumber, 10),
		s.AlphaQuantity.String(),
		s.TaoReceived.String(),
		s.TaoPriceUSD.String(),
		s.USDProceeds.String(),
		s.CostBasisUSD.String(),
		s.RealizedGain.String(),
		string(s.GainType),
		s.TaoExpected.String(),
		s.SlippageTao.String(),
		s.SlippageUSD.String(),
		s.SlippageRatio.String(),
		s.NetworkFeeTao.String(),
		s.NetworkFeeUSD.String(),
		encodeConsumptions(s.ConsumedLots),
		s.CreatedTaoLotID,
		s.ExtrinsicID,
		s.Notes,
	}
}

func decodeSale(r Row) *ledger.Sale {
	return &ledger.Sale{
		SaleID:          cell(r, 1),
		Timestamp:       parseInt(cell(r, 3)),
		BlockNumber:     parseInt(cell(r, 4)),
		AlphaQuantity:   parseDec(cell(r, 5)),
		TaoReceived:     parseDec(cell(r, 6)),
		TaoPriceUSD:     parseDec(cell(r, 7)),
		USDProceeds:     parseDec(cell(r, 8)),
		CostBasisUSD:    parseDec(cell(r, 9)),
		RealizedGain:    parseDec(cell(r, 10)),
		GainType:        ledger.GainType(cell(r, 11)),
		TaoExpected:     parseDec(cell(r, 12)),
		SlippageTao:     parseDec(cell(r, 13)),
		SlippageUSD:     parseDec(cell(r, 14)),
		SlippageRatio:   parseDec(cell(r, 15)),
		NetworkFeeTao:   parseDec(cell(r, 16)),
		NetworkFeeUSD:   parseDec(cell(r, 17)),
		ConsumedLots:    decodeConsumptions(cell(r, 18)),
		CreatedTaoLotID: cell(r, 19),
		ExtrinsicID:     cell(r, 20),
		Notes:           cell(r, 21),
	}
}

func encodeExpense(e *ledger.Expense) Row {
	return Row{
		e.ExpenseID,
		formatTime(e.Timestamp),
		strconv.FormatInt(e.Timestamp, 10),
		strconv.FormatInt(e.BlockNumber, 10),
		e.TransferAddress,
		e.Category,
		e.AlphaQuantity.String(),
		e.TaoReceived.String(),
		e.TaoPriceUSD.String(),
		e.USDProceeds.String(),
		e.CostBasisUSD.String(),
		e.RealizedGain.String(),
		string(e.GainType),
		e.TaoExpected.String(),
		e.SlippageTao.String(),
		e.SlippageUSD.String(),
		e.SlippageRatio.String(),
		e.NetworkFeeTao.String(),
		e.NetworkFeeUSD.String(),
		encodeConsumptions(e.ConsumedLots),
		"",
		e.ExtrinsicID,
		e.Notes,
	}
}

func decodeExpense(r Row) *ledger.Expense {
	return &ledger.Expense{
		ExpenseID:       cell(r, 1),
		Timestamp:       parseInt(cell(r, 3)),
		BlockNumber:     parseInt(cell(r, 4)),
		TransferAddress: cell(r, 5),
		Category:        cell(r, 6),
		AlphaQuantity:   parseDec(cell(r, 7)),
		TaoReceived:     parseDec(cell(r, 8)),
		TaoPriceUSD:     parseDec(cell(r, 9)),
		USDProceeds:     parseDec(cell(r, 10)),
		CostBasisUSD:    parseDec(cell(r, 11)),
		RealizedGain:    parseDec(cell(r, 12)),
		GainType:        ledger.GainType(cell(r, 13)),
		TaoExpected:     parseDec(cell(r, 14)),
		SlippageTao:     parseDec(cell(r, 15)),
		SlippageUSD:     parseDec(cell(r, 16)),
		SlippageRatio:   parseDec(cell(r, 17)),
		NetworkFeeTao:   parseDec(cell(r, 18)),
		NetworkFeeUSD:   parseDec(cell(r, 19)),
		ConsumedLots:    decodeConsumptions(cell(r, 20)),
		ExtrinsicID:     cell(r, 22),
		Notes:           cell(r, 23),
	}
}

func encodeTransfer(t *ledger.Transfer) Row {
	return Row{
		t.TransferID,
		formatTime(t.Timestamp),
		strconv.FormatInt(t.Timestamp, 10),
		strconv.FormatInt(t.BlockNumber, 10),
		t.TaoAmount.String(),
		t.TaoPriceUSD.String(),
		t.USDProceeds.String(),
		t.CostBasisUSD.String(),
		t.RealizedGain.String(),
		string(t.GainType),
		encodeConsumptions(t.ConsumedLots),
		t.TransactionHash,
		t.ExtrinsicID,
		t.Notes,
		t.TotalOutflowTao.String(),
		t.FeeTao.String(),
		t.FeeCostBasisUSD.String(),
	}
}

func decodeTransfer(r Row) *ledger.Transfer {
	t := &ledger.Transfer{
		TransferID:      cell(r, 1),
		Timestamp:       parseInt(cell(r, 3)),
		BlockNumber:     parseInt(cell(r, 4)),
		TaoAmount:       parseDec(cell(r, 5)),
		TaoPriceUSD:     parseDec(cell(r, 6)),
		USDProceeds:     parseDec(cell(r, 7)),
		CostBasisUSD:    parseDec(cell(r, 8)),
		RealizedGain:    parseDec(cell(r, 9)),
		GainType:        ledger.GainType(cell(r, 10)),
		ConsumedLots:    decodeConsumptions(cell(r, 11)),
		TransactionHash: cell(r, 12),
		ExtrinsicID:     cell(r, 13),
		Notes:           cell(r, 14),
		TotalOutflowTao: parseDec(cell(r, 15)),
		FeeTao:          parseDec(cell(r, 16)),
	}

	// The fee basis column wins; older rows only carried it as note
	// metadata.
	if v := cell(r, 17); v != "" {
		t.FeeCostBasisUSD = parseDec(v)
	} else {
		t.FeeCostBasisUSD = feeBasisFromNotes(t.Notes)
	}
	return t
}

// feeBasisFromNotes extracts "fee_cost_basis=<n>" metadata from a notes
// cell.
func feeBasisFromNotes(notes string) decimal.Decimal {
	for _, part := range strings.Fields(notes) {
		if v, ok := strings.CutPrefix(part, "fee_cost_basis="); ok {
			return parseDec(strings.TrimSuffix(v, ";"))
		}
	}
	return decimal.Zero
}

func encodeJournalEntry(e *ledger.JournalEntry) Row {
	debit, credit := "", ""
	if e.Debit.IsPositive() {
		debit = e.Debit.String()
	}
	if e.Credit.IsPositive() {
		credit = e.Credit.String()
	}
	return Row{e.Month, e.EntryType, e.Account, debit, credit, e.Description}
}

func decodeJournalEntry(r Row) *ledger.JournalEntry {
	return &ledger.JournalEntry{
		Month:       cell(r, 1),
		EntryType:   cell(r, 2),
		Account:     cell(r, 3),
		Debit:       parseDec(cell(r, 4)),
		Credit:      parseDec(cell(r, 5)),
		Description: cell(r, 6),
	}
}
