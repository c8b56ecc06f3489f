package sheets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/subtensorlabs/taobooks/httpx"
)

const googleSheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// GoogleStore is the Google Sheets backend. Each table is one sheet (tab)
// of a single spreadsheet, with the header in row 1 and data from row 2.
// Writes retry with backoff when the API rate-limits.
type GoogleStore struct {
	hc            *http.Client
	log           zerolog.Logger
	spreadsheetID string
	token         string
	baseURL       string
	retry         httpx.Policy

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// GoogleOption configures a GoogleStore.
type GoogleOption func(*GoogleStore)

// WithGoogleBaseURL points the store at a different API host. Used by
// tests.
func WithGoogleBaseURL(base string) GoogleOption {
	return func(s *GoogleStore) { s.baseURL = base }
}

func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(s *GoogleStore) { s.hc = hc }
}

// NewGoogleStore builds a store for one spreadsheet, authenticated with an
// OAuth bearer token.
func NewGoogleStore(spreadsheetID, token string, log zerolog.Logger, opts ...GoogleOption) (*GoogleStore, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if token == "" {
		return nil, fmt.Errorf("sheets: access token is required")
	}

	s := &GoogleStore{
		hc:            &http.Client{Timeout: 60 * time.Second},
		log:           log.With().Str("component", "sheets").Logger(),
		spreadsheetID: spreadsheetID,
		token:         token,
		baseURL:       googleSheetsBaseURL,
		retry:         httpx.DefaultPolicy(),
		sheetIDs:      map[string]int64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ RowStore = (*GoogleStore)(nil)

func (s *GoogleStore) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := s.baseURL + "/" + s.spreadsheetID + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return s.retry.Do(ctx, func() error {
		req, err := httpx.NewJSONRequest(ctx, method, u, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.token)
		return httpx.DoJSON(s.hc, req, out)
	})
}

// dataRange addresses the data region of a table, below the header.
func dataRange(table string) string {
	return url.PathEscape(fmt.Sprintf("'%s'!A2:ZZ", table))
}

type sheetMetadata struct {
	Sheets []struct {
		Properties struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

// refreshSheetIDs reloads the title to sheetId mapping used by structural
// requests like sortRange.
func (s *GoogleStore) refreshSheetIDs(ctx context.Context) error {
	var meta sheetMetadata
	q := url.Values{"fields": {"sheets.properties(sheetId,title)"}}
	if err := s.do(ctx, http.MethodGet, "", q, nil, &meta); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheetIDs = make(map[string]int64, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		s.sheetIDs[sh.Properties.Title] = sh.Properties.SheetID
	}
	return nil
}

func (s *GoogleStore) sheetID(ctx context.Context, table string) (int64, error) {
	s.mu.Lock()
	id, ok := s.sheetIDs[table]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := s.refreshSheetIDs(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok = s.sheetIDs[table]
	if !ok {
		return 0, fmt.Errorf("sheets: no sheet named %q", table)
	}
	return id, nil
}

func (s *GoogleStore) EnsureTable(ctx context.Context, table string, headers []string) error {
	if _, err := s.sheetID(ctx, table); err == nil {
		return nil
	}

	s.log.Info().Str("table", table).Msg("creating sheet")
	body := map[string]any{
		"requests": []any{
			map[string]any{
				"addSheet": map[string]any{
					"properties": map[string]any{"title": table},
				},
			},
		},
	}
	if err := s.do(ctx, http.MethodPost, ":batchUpdate", nil, body, nil); err != nil {
		return err
	}
	if err := s.refreshSheetIDs(ctx); err != nil {
		return err
	}

	headerRange := url.PathEscape(fmt.Sprintf("'%s'!A1", table))
	update := map[string]any{"values": []Row{headers}}
	q := url.Values{"valueInputOption": {"RAW"}}
	return s.do(ctx, http.MethodPut, "/values/"+headerRange, q, update, nil)
}

func (s *GoogleStore) ReadAll(ctx context.Context, table string) ([]Row, error) {
	var resp struct {
		Values []Row `json:"values"`
	}
	if err := s.do(ctx, http.MethodGet, "/values/"+dataRange(table), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *GoogleStore) Append(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	q := url.Values{
		"valueInputOption": {"RAW"},
		"insertDataOption": {"INSERT_ROWS"},
	}
	body := map[string]any{"values": rows}
	return s.do(ctx, http.MethodPost, "/values/"+dataRange(table)+":append", q, body, nil)
}

// columnLetter converts a 1-based column index to its A1 letters.
func columnLetter(col int) string {
	var out []byte
	for col > 0 {
		col--
		out = append([]byte{byte('A' + col%26)}, out...)
		col /= 26
	}
	return string(out)
}

func (s *GoogleStore) UpdateCells(ctx context.Context, table string, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	data := make([]any, len(updates))
	for i, u := range updates {
		// Data row 1 is spreadsheet row 2.
		a1 := fmt.Sprintf("'%s'!%s%d", table, columnLetter(u.Col), u.Row+1)
		data[i] = map[string]any{
			"range":  a1,
			"values": []Row{{u.Value}},
		}
	}
	body := map[string]any{
		"valueInputOption": "RAW",
		"data":             data,
	}
	return s.do(ctx, http.MethodPost, "/values:batchUpdate", nil, body, nil)
}

func (s *GoogleStore) Replace(ctx context.Context, table string, rows []Row) error {
	if err := s.do(ctx, http.MethodPost, "/values/"+dataRange(table)+":clear", nil, map[string]any{}, nil); err != nil {
		return err
	}
	return s.Append(ctx, table, rows)
}

func (s *GoogleStore) SortByColumn(ctx context.Context, table string, col int) error {
	id, err := s.sheetID(ctx, table)
	if err != nil {
		return err
	}
	body := map[string]any{
		"requests": []any{
			map[string]any{
				"sortRange": map[string]any{
					"range": map[string]any{
						"sheetId":          id,
						"startRowIndex":    1, // keep the header in place
						"startColumnIndex": 0,
					},
					"sortSpecs": []any{
						map[string]any{
							"dimensionIndex": col - 1,
							"sortOrder":      "ASCENDING",
						},
					},
				},
			},
		},
	}
	return s.do(ctx, http.MethodPost, ":batchUpdate", nil, body, nil)
}
