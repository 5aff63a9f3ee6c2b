// Package google implements the mirror sheet on the Google Sheets API.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/log"
	"fintrack/internal/sheets"
)

const lastColumn = "G"

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ sheets.Sheet = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service. An empty sheetName means
// "Transactions".
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Transactions"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        log.Default().WithComponent(log.ComponentSheets),
	}
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) columns() string {
	return fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
}

func (c *Client) ReadRows(ctx context.Context) ([]sheets.Row, error) {
	rng := c.columns()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := make([]sheets.Row, 0, len(resp.Values))
	for i, raw := range resp.Values {
		rows = append(rows, sheets.Row{Number: i + 1, Values: toStrings(raw)})
	}
	return rows, nil
}

// AppendRows writes values as RAW so titles are never evaluated as formulas.
func (c *Client) AppendRows(ctx context.Context, rows [][]string) error {
	values := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		row := make([]interface{}, len(r))
		for i, v := range r {
			row[i] = v
		}
		values = append(values, row)
	}

	rng := c.columns()
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", rng, err)
	}
	c.logger.DebugContext(ctx, "Rows appended", "count", len(rows), log.FieldSheetsRef, rng)
	return nil
}

func (c *Client) ClearRow(ctx context.Context, number int) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, number, lastColumn, number)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	c.logger.DebugContext(ctx, "Row cleared", log.FieldSheetsRef, rng)
	return nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
