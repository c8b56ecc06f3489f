package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// InsufficientLotsError is returned when a disposal asks for more quantity
// than the eligible open lots can cover. No lot state is modified when this
// error is returned.
type InsufficientLotsError struct {
	Asset     string
	Requested decimal.Decimal
	Available decimal.Decimal
	AsOf      int64
}

func (e *InsufficientLotsError) Error() string {
	msg := fmt.Sprintf("insufficient %s lots: requested %s, available %s",
		e.Asset, e.Requested.String(), e.Available.String())
	if e.AsOf > 0 {
		msg += fmt.Sprintf(" (as of %d)", e.AsOf)
	}
	return msg
}

// NewInsufficientLotsError creates an error for an uncoverable disposal.
func NewInsufficientLotsError(asset string, requested, available decimal.Decimal, asOf int64) *InsufficientLotsError {
	return &InsufficientLotsError{
		Asset:     asset,
		Requested: requested,
		Available: available,
		AsOf:      asOf,
	}
}

// UncategorizedExpensesError blocks journal generation while expenses are
// missing a category. Every expense must carry one so its debit can be
// routed to the right account.
type UncategorizedExpensesError struct {
	Month      string
	ExpenseIDs []string
}

func (e *UncategorizedExpensesError) Error() string {
	return fmt.Sprintf("cannot generate journal for %s: %d uncategorized expense(s): %s",
		e.Month, len(e.ExpenseIDs), strings.Join(e.ExpenseIDs, ", "))
}

// NewUncategorizedExpensesError creates an error listing the offending expenses.
func NewUncategorizedExpensesError(month string, ids []string) *UncategorizedExpensesError {
	return &UncategorizedExpensesError{Month: month, ExpenseIDs: ids}
}

// InvalidWindowError is returned when a processing time window cannot be
// resolved from the given lookback and watermark.
type InvalidWindowError struct {
	Label  string
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("cannot resolve time window for %s: %s", e.Label, e.Reason)
}
