// Package cli wires the tracker's command surface: auto, income, sales,
// transfers, and journal.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"golang.org/x/term"

	"github.com/subtensorlabs/taobooks/ledger"
)

var (
	successSymbol = "✓"
	errorSymbol   = "✗"
	infoSymbol    = "→"

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D787", Dark: "#00D787"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5FAFFF", Dark: "#5FAFFF"})
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D7D7", Dark: "#00D7D7"})
)

func printSuccess(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		successStyle.Render(successSymbol),
		message,
	)
}

func printError(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		errorStyle.Render(errorSymbol),
		errorStyle.Render(message),
	)
}

func printInfof(w io.Writer, format string, args ...interface{}) {
	formatted := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(w, "%s %s\n",
		infoStyle.Render(infoSymbol),
		formatted,
	)
}

// printSummary renders a month's totals as a labelled report.
func printSummary(w io.Writer, s *ledger.Summary) {
	line := func(label string, v decimal.Decimal) {
		if v.IsZero() {
			return
		}
		_, _ = fmt.Fprintf(w, "  %s $%s\n", labelStyle.Render(label+":"), v.Round(2))
	}

	_, _ = fmt.Fprintf(w, "\n%s\n", labelStyle.Render("Summary for "+s.Month))
	line("Contract income", s.ContractIncome)
	line("Staking income", s.StakingIncome)
	line("Mining income", s.MiningIncome)
	line("Sales proceeds", s.SalesProceeds)
	line("Sales gain/loss", s.SalesGain)
	line("Sales slippage", s.SalesSlippage)
	line("Sales fees", s.SalesFees)
	line("Expense proceeds", s.ExpenseProceeds)
	line("Expense gain/loss", s.ExpenseGain)
	line("Transfer gain/loss", s.TransferGain)
	line("Transfer fees", s.TransferFees)
}

// promptYesNo asks a yes/no question, defaulting to no when stdin is not a
// terminal.
func promptYesNo(question string) (bool, error) {
	if !isTerminal() {
		return false, nil
	}

	var confirm bool
	form := huh.NewConfirm().
		Title(question).
		WithButtonAlignment(lipgloss.Left).
		Value(&confirm)

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	return confirm, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
