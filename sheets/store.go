// Package sheets persists the tracker's tables to a row-oriented store.
// The production backend is a Google Sheets spreadsheet; a memory-backed
// implementation serves tests. Row codecs at this boundary translate
// between sheet cells and the typed ledger records.
package sheets

import "context"

// Row is one data row of a table, as string cells. Row 1 is the first row
// below the header.
type Row []string

// CellUpdate rewrites a single cell of a data row. Col is 1-based.
type CellUpdate struct {
	Row   int
	Col   int
	Value string
}

// RowStore is the minimal surface the tracker needs from a spreadsheet.
type RowStore interface {
	// EnsureTable creates the table with the header row when missing.
	EnsureTable(ctx context.Context, table string, headers []string) error

	// ReadAll returns every data row, excluding the header.
	ReadAll(ctx context.Context, table string) ([]Row, error)

	// Append adds rows after the last data row.
	Append(ctx context.Context, table string, rows []Row) error

	// UpdateCells applies point updates to existing data rows.
	UpdateCells(ctx context.Context, table string, updates []CellUpdate) error

	// Replace swaps the table's entire data region for the given rows.
	Replace(ctx context.Context, table string, rows []Row) error

	// SortByColumn sorts the data region ascending by a 1-based column.
	SortByColumn(ctx context.Context, table string, col int) error
}
