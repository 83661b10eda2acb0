// Package google writes household statements to Google Sheets using
// service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"wisp/internal/config"
	"wisp/internal/export"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ export.StatementWriter = (*Client)(nil)

// New creates a Sheets client from the export configuration. Credentials
// come from the configured service account file or inline JSON.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.GoogleSpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.GoogleSpreadsheetID,
		sheetName:     cfg.GoogleSheetName,
	}, nil
}

func loadCredentials(cfg *config.Config) ([]byte, error) {
	if json := strings.TrimSpace(cfg.GoogleServiceAccountJSON); json != "" {
		return []byte(json), nil
	}
	if file := strings.TrimSpace(cfg.GoogleServiceAccountFile); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("missing service account credentials")
}

// AppendStatement appends one row per member below the existing sheet
// content. Amounts are written as plain decimals.
func (c *Client) AppendStatement(ctx context.Context, rows []export.StatementRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return "", errors.New("no statement rows to append")
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = []any{
			row.Period,
			row.MemberName,
			row.TotalPaid.String(),
			row.TotalOwed.String(),
			row.Balance.String(),
		}
	}

	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	vr := &gsheet.ValueRange{Values: values}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append statement to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Statement appended",
		"sheet", c.sheetName,
		"rows", len(rows),
		"range", ref)
	return ref, nil
}
