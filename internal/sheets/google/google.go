package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"workhours/internal/cache"
	"workhours/internal/core"
	ports "workhours/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const rowsCacheKey = "worklog_rows"

var errNoService = errors.New("sheets service not initialized")

// Ensure interface conformance
var _ ports.WorkLog = (*Client)(nil)

// Options configures a Client.
type Options struct {
	SpreadsheetID   string
	Sheet           string
	CredentialsJSON []byte
	CacheTTL        time.Duration
}

// Client stores the work log in a two column sheet: Date (YYYY-MM-DD) and
// Hours, with a header in row 1.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	// writes read the sheet, then update it; mu keeps them from interleaving
	mu   sync.Mutex
	rows *cache.LRUCache[[]sheetRow]
}

// LoadCredentials returns inline service account JSON, or the contents of
// file when no inline JSON is set.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	if s := strings.TrimSpace(inlineJSON); s != "" {
		return []byte(s), nil
	}
	if file = strings.TrimSpace(file); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(opts.Sheet) == "" {
		opts.Sheet = "WorkLog"
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(opts.CredentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "sheet", opts.Sheet)
	return newClient(svc, opts), nil
}

func newClient(svc *gsheet.Service, opts Options) *Client {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheet:         opts.Sheet,
		rows:          cache.NewLRUCache[[]sheetRow](1, ttl),
	}
}

// Cache exposes the row cache so it can be registered for cleanup.
func (c *Client) Cache() cache.Cleaner {
	return c.rows
}

// InvalidateCache forces the next read to hit the API.
func (c *Client) InvalidateCache() {
	c.rows.Clear()
}

// QueryAll implements ports.WorkLogReader
func (c *Client) QueryAll(ctx context.Context) ([]core.DayEntry, error) {
	rows, err := c.cachedRows(ctx)
	if err != nil {
		return nil, err
	}
	return entriesFromRows(rows), nil
}

// Upsert implements ports.WorkLogWriter. Existing dates are updated in
// place; new dates are appended.
func (c *Client) Upsert(ctx context.Context, entries []core.DayEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := core.ValidateHours(e.Hours); err != nil {
			return fmt.Errorf("work day %s: %w", e.Date, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.InvalidateCache()

	rows, err := c.fetchRows(ctx)
	if err != nil {
		return err
	}
	index := rowIndex(rows)

	var updates []*gsheet.ValueRange
	var appends [][]any
	for _, e := range entries {
		values := []any{e.Date.String(), e.Hours}
		if n, ok := index[e.Date]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:B%d", c.sheet, n, n),
				Values: [][]any{values},
			})
			continue
		}
		appends = append(appends, values)
	}

	if len(updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: updates}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("update rows in %s: %w", c.sheet, err)
		}
	}
	if len(appends) > 0 {
		vr := &gsheet.ValueRange{Values: appends}
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A:B", vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append rows to %s: %w", c.sheet, err)
		}
	}

	slog.InfoContext(ctx, "Work log written to Google Sheets", "updated", len(updates), "appended", len(appends))
	return nil
}

// Delete implements ports.WorkLogWriter by clearing the matching rows.
func (c *Client) Delete(ctx context.Context, dates []core.Date) error {
	if len(dates) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.InvalidateCache()

	rows, err := c.fetchRows(ctx)
	if err != nil {
		return err
	}

	want := make(map[core.Date]bool, len(dates))
	for _, d := range dates {
		want[d] = true
	}
	var ranges []string
	for _, r := range rows {
		if want[r.Date] {
			ranges = append(ranges, fmt.Sprintf("%s!A%d:B%d", c.sheet, r.Row, r.Row))
		}
	}
	if len(ranges) == 0 {
		return nil
	}

	req := &gsheet.BatchClearValuesRequest{Ranges: ranges}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear rows in %s: %w", c.sheet, err)
	}
	slog.InfoContext(ctx, "Work log rows cleared in Google Sheets", "cleared", len(ranges))
	return nil
}

func (c *Client) cachedRows(ctx context.Context) ([]sheetRow, error) {
	if rows, ok := c.rows.Get(rowsCacheKey); ok {
		return rows, nil
	}
	return c.fetchRows(ctx)
}

func (c *Client) fetchRows(ctx context.Context) ([]sheetRow, error) {
	if c.svc == nil {
		return nil, errNoService
	}
	rng := c.sheet + "!A:B"
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := parseWorkLogRows(resp.Values)
	c.rows.Set(rowsCacheKey, rows)
	return rows, nil
}
