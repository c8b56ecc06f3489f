package cli

import (
	"context"
	stdErrors "errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alecthomas/kong"

	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/telemetry"
	"github.com/subtensorlabs/taobooks/tracker"
)

// Globals defines global flags available to all commands.
type Globals struct {
	Env       string `help:"Path to a .env file with tracker settings." type:"path"`
	Verbose   bool   `help:"Enable debug logging."`
	Telemetry bool   `help:"Show timing telemetry for operations."`
}

type Commands struct {
	Globals

	Auto      AutoCmd      `cmd:"" help:"Run every tracking phase: contract income, emissions, sales, expenses, and transfers."`
	Income    IncomeCmd    `cmd:"" help:"Record contract income and daily emissions as new cost basis lots."`
	Sales     SalesCmd     `cmd:"" help:"Process ALPHA disposals: unstakes into TAO and stake transfer expenses."`
	Transfers TransfersCmd `cmd:"" help:"Process TAO transfers to the brokerage account."`
	Journal   JournalCmd   `cmd:"" help:"Generate balanced monthly journal entries."`
}

// run builds the tracker, attaches a telemetry collector when requested,
// and hands off to the command body.
func run(ctx *kong.Context, globals *Globals, name string, fn func(context.Context, *tracker.Tracker) error) error {
	runCtx := context.Background()

	var collector telemetry.Collector
	var rootTimer telemetry.Timer
	var once sync.Once

	reportTelemetry := func() {
		once.Do(func() {
			if collector != nil {
				rootTimer.End()
				_, _ = fmt.Fprintln(ctx.Stderr)
				collector.Report(ctx.Stderr)
			}
		})
	}

	if globals.Telemetry {
		collector = telemetry.NewTimingCollector()
		runCtx = telemetry.WithCollector(runCtx, collector)

		rootTimer = collector.Start(name)
		defer reportTelemetry()
	}

	tr, err := newTracker(globals)
	if err != nil {
		return err
	}
	if err := tr.Init(runCtx); err != nil {
		return fmt.Errorf("failed to initialize ledger tables: %w", err)
	}

	return fn(runCtx, tr)
}

type AutoCmd struct {
	Lookback *int `help:"Reprocess the last N days instead of resuming from the stored watermarks."`
}

func (cmd *AutoCmd) Run(ctx *kong.Context, globals *Globals) error {
	return run(ctx, globals, "auto", func(runCtx context.Context, tr *tracker.Tracker) error {
		if err := tr.Run(runCtx, cmd.Lookback); err != nil {
			return err
		}

		printSuccess(ctx.Stdout, "all tracking phases complete")
		return nil
	})
}

type IncomeCmd struct {
	Lookback *int `help:"Reprocess the last N days instead of resuming from the stored watermarks."`
}

func (cmd *IncomeCmd) Run(ctx *kong.Context, globals *Globals) error {
	return run(ctx, globals, "income", func(runCtx context.Context, tr *tracker.Tracker) error {
		contract, err := tr.ProcessContractIncome(runCtx, cmd.Lookback)
		if err != nil {
			return fmt.Errorf("contract income: %w", err)
		}
		emissions, err := tr.ProcessEmissions(runCtx, cmd.Lookback)
		if err != nil {
			return fmt.Errorf("emissions: %w", err)
		}

		printSuccess(ctx.Stdout, fmt.Sprintf("recorded %d contract income lot(s) and %d emission lot(s)",
			len(contract), len(emissions)))
		return nil
	})
}

// SalesCmd covers both disposal shapes that come out of the undelegation
// stream: unstakes sold for TAO and stake transfers spent as expenses.
type SalesCmd struct {
	Lookback *int `help:"Reprocess the last N days instead of resuming from the stored watermarks."`
}

func (cmd *SalesCmd) Run(ctx *kong.Context, globals *Globals) error {
	return run(ctx, globals, "sales", func(runCtx context.Context, tr *tracker.Tracker) error {
		sales, err := tr.ProcessSales(runCtx, cmd.Lookback)
		if err != nil {
			return fmt.Errorf("sales: %w", err)
		}
		expenses, err := tr.ProcessExpenses(runCtx, cmd.Lookback)
		if err != nil {
			return fmt.Errorf("expenses: %w", err)
		}

		printSuccess(ctx.Stdout, fmt.Sprintf("recorded %d sale(s) and %d expense(s)", len(sales), len(expenses)))
		return nil
	})
}

type TransfersCmd struct {
	Lookback *int `help:"Reprocess the last N days instead of resuming from the stored watermarks."`
}

func (cmd *TransfersCmd) Run(ctx *kong.Context, globals *Globals) error {
	return run(ctx, globals, "transfers", func(runCtx context.Context, tr *tracker.Tracker) error {
		transfers, err := tr.ProcessTransfers(runCtx, cmd.Lookback)
		if err != nil {
			return fmt.Errorf("transfers: %w", err)
		}

		printSuccess(ctx.Stdout, fmt.Sprintf("recorded %d transfer(s)", len(transfers)))
		return nil
	})
}

type JournalCmd struct {
	Month string `help:"Month to generate, as YYYY-MM. Defaults to the previous calendar month."`
	Force bool   `help:"Regenerate without confirming when entries for the month already exist."`
}

func (cmd *JournalCmd) Run(ctx *kong.Context, globals *Globals) error {
	month := cmd.Month
	if month == "" {
		month = tracker.PreviousMonth(time.Now())
	}

	return run(ctx, globals, "journal", func(runCtx context.Context, tr *tracker.Tracker) error {
		exists, err := tr.HasJournalMonth(runCtx, month)
		if err != nil {
			return err
		}
		if exists && !cmd.Force {
			ok, err := promptYesNo(fmt.Sprintf("Journal entries for %s already exist. Regenerate them?", month))
			if err != nil {
				return err
			}
			if !ok {
				printInfof(ctx.Stdout, "keeping existing journal entries for %s", month)
				return nil
			}
		}

		entries, summary, err := tr.GenerateJournal(runCtx, month)
		if err != nil {
			var uncategorized *ledger.UncategorizedExpensesError
			if stdErrors.As(err, &uncategorized) {
				printError(ctx.Stderr, err.Error())
				printInfof(ctx.Stderr, "categorize the expense(s) in the sheet, then rerun")
				os.Exit(1)
			}
			return err
		}

		printSuccess(ctx.Stdout, fmt.Sprintf("wrote %d journal entries for %s", len(entries), month))
		printSummary(ctx.Stdout, summary)
		return nil
	})
}
