package sheets

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"replenish/internal"
	"replenish/internal/config"
)

// Client reads and writes the review spreadsheet through a service account.
type Client struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewClient(ctx context.Context, cfg config.Config) (*Client, error) {
	if err := cfg.Require("SHEETS_SPREADSHEET_ID", cfg.SheetsSpreadsheetID); err != nil {
		return nil, err
	}

	svc, err := sheets.NewService(ctx, authOption(ctx, cfg), option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, err
	}

	return &Client{service: svc, spreadsheetID: cfg.SheetsSpreadsheetID}, nil
}

// authOption picks the credential source: an OAuth refresh token when one is
// configured, otherwise the service account key file.
func authOption(ctx context.Context, cfg config.Config) option.ClientOption {
	if cfg.SheetsRefreshToken != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.SheetsClientID,
			ClientSecret: cfg.SheetsClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}
		return option.WithTokenSource(oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.SheetsRefreshToken}))
	}
	return option.WithCredentialsFile(cfg.SheetsCredentialsFile)
}

// WriteTable clears the worksheet and writes the table, headers in the first
// row.
func (c *Client) WriteTable(ctx context.Context, worksheet string, table internal.Table) error {
	if _, err := c.service.Spreadsheets.Values.Clear(c.spreadsheetID, worksheet, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear worksheet %s: %w", worksheet, err)
	}

	values := make([][]any, 0, len(table.Rows)+1)
	header := make([]any, len(table.Columns))
	for i, column := range table.Columns {
		header[i] = column
	}
	values = append(values, header)
	values = append(values, table.Rows...)

	_, err := c.service.Spreadsheets.Values.
		Update(c.spreadsheetID, worksheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update worksheet %s: %w", worksheet, err)
	}
	return nil
}

// ReadColumns fetches the worksheet and returns one map per data row keyed by
// the requested headers. Headers missing from the sheet map to empty strings.
func (c *Client) ReadColumns(ctx context.Context, worksheet string, headers []string) ([]map[string]string, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, worksheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", worksheet, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	columnIndex := map[string]int{}
	for i, cell := range resp.Values[0] {
		columnIndex[strings.TrimSpace(fmt.Sprint(cell))] = i
	}

	out := make([]map[string]string, 0, len(resp.Values)-1)
	for _, row := range resp.Values[1:] {
		record := make(map[string]string, len(headers))
		for _, header := range headers {
			idx, ok := columnIndex[header]
			if !ok || idx >= len(row) {
				record[header] = ""
				continue
			}
			record[header] = strings.TrimSpace(fmt.Sprint(row[idx]))
		}
		out = append(out, record)
	}
	return out, nil
}
