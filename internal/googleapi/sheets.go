package googleapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// Sheets reads and writes spreadsheet values.
type Sheets struct {
	srv *sheets.Service
}

// NewSheets creates the Sheets adapter.
func NewSheets(ctx context.Context, opts ...ClientOption) (*Sheets, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Sheets{srv: srv}, nil
}

// Values returns the cells of rng as strings. Rows keep the ragged shape
// the API returns.
func (s *Sheets) Values(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get values %s: %w", rng, err)
	}
	return stringRows(resp.Values), nil
}

// UpdateCell writes a single value, parsed as if typed by a user.
func (s *Sheets) UpdateCell(ctx context.Context, spreadsheetID, rng, value string) error {
	body := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := s.srv.Spreadsheets.Values.Update(spreadsheetID, rng, body).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// SheetTitles lists the tab titles in order.
func (s *Sheets) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	resp, err := s.srv.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	var titles []string
	for _, sh := range resp.Sheets {
		if sh.Properties == nil || sh.Properties.Title == "" {
			slog.Warn("Sheets.SheetTitles: skipping untitled sheet", "spreadsheetID", spreadsheetID)
			continue
		}
		titles = append(titles, sh.Properties.Title)
	}
	return titles, nil
}

// SpreadsheetText renders every sheet as "Sheet: {title}" followed by tab
// separated rows, with sheets separated by a blank line.
func (s *Sheets) SpreadsheetText(ctx context.Context, spreadsheetID string) (string, error) {
	titles, err := s.SheetTitles(ctx, spreadsheetID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(titles))
	for _, title := range titles {
		rows, err := s.Values(ctx, spreadsheetID, title)
		if err != nil {
			return "", err
		}
		parts = append(parts, "Sheet: "+title+"\n"+joinRows(rows))
	}
	return strings.Join(parts, "\n\n"), nil
}

// QuoteRange builds an A1 range for a sheet whose title may contain spaces.
func QuoteRange(sheet, cells string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

// ColumnLetter converts a 0-based column index to its A1 letters.
func ColumnLetter(idx int) string {
	var out []byte
	for idx >= 0 {
		out = append([]byte{byte('A' + idx%26)}, out...)
		idx = idx/26 - 1
	}
	return string(out)
}

func stringRows(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, cell := range row {
			if cell != nil {
				cells[j] = fmt.Sprint(cell)
			}
		}
		rows[i] = cells
	}
	return rows
}

func joinRows(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, "\t")
	}
	return strings.Join(lines, "\n")
}
