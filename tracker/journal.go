package tracker

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/telemetry"
)

// GenerateJournal builds the double-entry postings for one month from the
// persisted tables and writes them to the journal, replacing any previous
// postings for that month.
func (t *Tracker) GenerateJournal(ctx context.Context, month string) ([]ledger.JournalEntry, *ledger.Summary, error) {
	timer := telemetry.FromContext(ctx).Start("journal " + month)
	defer timer.End()

	income, err := t.books.AlphaLots(ctx)
	if err != nil {
		return nil, nil, err
	}
	sales, err := t.books.Sales(ctx)
	if err != nil {
		return nil, nil, err
	}
	expenses, err := t.books.Expenses(ctx)
	if err != nil {
		return nil, nil, err
	}
	transfers, err := t.books.Transfers(ctx)
	if err != nil {
		return nil, nil, err
	}

	entries, summary, err := ledger.BuildMonthlyJournal(ledger.JournalInput{
		Month:     month,
		Income:    income,
		Sales:     sales,
		Expenses:  expenses,
		Transfers: transfers,
		Accounts:  t.opts.Accounts,
	})
	if err != nil {
		return nil, nil, err
	}

	rows := lo.Map(entries, func(e ledger.JournalEntry, _ int) *ledger.JournalEntry {
		entry := e
		return &entry
	})
	if err := t.books.ReplaceJournalMonth(ctx, month, rows); err != nil {
		return nil, nil, err
	}
	t.log.Info().Str("month", month).Int("entries", len(entries)).Msg("journal written")
	return entries, summary, nil
}

// HasJournalMonth reports whether postings already exist for a month.
func (t *Tracker) HasJournalMonth(ctx context.Context, month string) (bool, error) {
	return t.books.HasJournalMonth(ctx, month)
}

// PreviousMonth returns the "YYYY-MM" label of the month before now, the
// default target for journal generation.
func PreviousMonth(now time.Time) string {
	return now.UTC().AddDate(0, -1, -(now.UTC().Day() - 1)).Format("2006-01")
}
