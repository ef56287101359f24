// Package sheets implements the tabular backing store over the Google
// Sheets API. Each logical table is one sheet with a header row; data row
// index i lives at spreadsheet row i+2.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/filmgatebot/filmgate/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrUnavailable indicates the backing store could not complete a call after
// exhausting retries.
var ErrUnavailable = errors.New("backing store unavailable")

// valueInputRaw stores values as-is without spreadsheet-side parsing.
const valueInputRaw = "RAW"

// Client is a TableStore over one spreadsheet. Every call retries transient
// API failures with bounded backoff before giving up.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	retry         utils.RetryOptions
	logger        *zap.Logger
}

// NewClient creates a Client authenticated with the configured service
// account credentials.
func NewClient(ctx context.Context, cfg *config.Sheets, retry config.Retry, logger *zap.Logger) (*Client, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		retry: utils.RetryOptions{
			MaxElapsedTime:  2 * time.Minute,
			InitialInterval: time.Duration(retry.Delay) * time.Millisecond,
			MaxInterval:     time.Duration(retry.MaxDelay) * time.Millisecond,
			MaxRetries:      retry.MaxRetries,
		},
		logger: logger.Named("sheets"),
	}, nil
}

// GetAllRows returns every data row of a table.
func (c *Client) GetAllRows(ctx context.Context, table string) ([][]string, error) {
	return c.GetRowsSince(ctx, table, 0)
}

// GetRowsSince returns data rows starting at the given index.
func (c *Client) GetRowsSince(ctx context.Context, table string, start int) ([][]string, error) {
	readRange := fmt.Sprintf("%s!A%d:Z", table, start+2)

	resp, err := utils.WithRetryResult(ctx, func() (*sheets.ValueRange, error) {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
		return resp, classify(err)
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s from row %d: %s", ErrUnavailable, table, start, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, values := range resp.Values {
		rows = append(rows, toStringRow(values))
	}

	c.logger.Debug("Read rows",
		zap.String("table", table),
		zap.Int("start", start),
		zap.Int("count", len(rows)))

	return rows, nil
}

// AppendRow adds a row after the last data row of a table.
func (c *Client) AppendRow(ctx context.Context, table string, row []string) error {
	vr := &sheets.ValueRange{Values: [][]any{toAnyRow(row)}}

	err := utils.WithRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, table+"!A:Z", vr).
			ValueInputOption(valueInputRaw).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()

		return classify(err)
	}, c.retry)
	if err != nil {
		return fmt.Errorf("%w: append to %s: %s", ErrUnavailable, table, err)
	}

	return nil
}

// UpdateRow overwrites the data row at the given index.
func (c *Client) UpdateRow(ctx context.Context, table string, index int, row []string) error {
	writeRange := fmt.Sprintf("%s!A%d", table, index+2)
	vr := &sheets.ValueRange{Values: [][]any{toAnyRow(row)}}

	err := utils.WithRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
			ValueInputOption(valueInputRaw).
			Context(ctx).Do()

		return classify(err)
	}, c.retry)
	if err != nil {
		return fmt.Errorf("%w: update %s row %d: %s", ErrUnavailable, table, index, err)
	}

	return nil
}

// classify marks non-retryable API errors as permanent so the retry policy
// stops immediately. Rate limits and server errors stay retryable, as do
// plain network failures.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return err
		}

		return utils.Permanent(err)
	}

	return err
}

func toStringRow(values []any) []string {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprint(v)
	}

	return row
}

func toAnyRow(row []string) []any {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}

	return values
}
