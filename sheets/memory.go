package sheets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is an in-memory RowStore used by tests and dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	headers []string
	rows    []Row
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: map[string]*memoryTable{}}
}

func (s *MemoryStore) table(name string) (*memoryTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", name)
	}
	return t, nil
}

func (s *MemoryStore) EnsureTable(_ context.Context, table string, headers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = &memoryTable{headers: append([]string(nil), headers...)}
	}
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context, table string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = append(Row(nil), r...)
	}
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, table string, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return err
	}
	for _, r := range rows {
		t.rows = append(t.rows, append(Row(nil), r...))
	}
	return nil
}

func (s *MemoryStore) UpdateCells(_ context.Context, table string, updates []CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.Row < 1 || u.Row > len(t.rows) {
			return fmt.Errorf("table %q has no row %d", table, u.Row)
		}
		row := t.rows[u.Row-1]
		for len(row) < u.Col {
			row = append(row, "")
		}
		row[u.Col-1] = u.Value
		t.rows[u.Row-1] = row
	}
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, table string, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.rows = nil
	for _, r := range rows {
		t.rows = append(t.rows, append(Row(nil), r...))
	}
	return nil
}

func (s *MemoryStore) SortByColumn(_ context.Context, table string, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return err
	}
	sort.SliceStable(t.rows, func(i, j int) bool {
		return cellLess(cellAt(t.rows[i], col), cellAt(t.rows[j], col))
	})
	return nil
}

func cellAt(r Row, col int) string {
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// cellLess compares numerically when both cells parse as numbers, matching
// how a spreadsheet sorts a timestamp column.
func cellLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}

var _ RowStore = (*MemoryStore)(nil)
