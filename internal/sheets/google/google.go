package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuzdan/internal/log"
	ports "cuzdan/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// Ensure interface conformance
var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account. Extra
// options are appended after the credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	credentials, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, credentials, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return newClient(svc, spreadsheetID, cfg.SheetName, logger), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Report"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, logger: logger}
}

func loadCredentials(cfg Config) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(cfg.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newSheetsService(ctx context.Context, credentialsJSON []byte, opts ...goption.ClientOption) (*gsheet.Service, error) {
	all := []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}
	service, err := gsheet.NewService(ctx, append(all, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteReport clears the tab named sheetTitle (the configured name when
// empty), creating it if needed, and writes rows from A1.
func (c *Client) WriteReport(ctx context.Context, sheetTitle string, rows [][]string) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := strings.TrimSpace(sheetTitle)
	if title == "" {
		title = c.sheetName
	}

	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	tab := quoteTitle(title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tab, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", title, err)
	}

	vr := &gsheet.ValueRange{Values: toValues(rows)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, tab+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to write report to sheet %s: %w", title, err)
	}

	c.logger.InfoContext(ctx, "Wrote report to Google Sheets",
		log.FieldOperation, log.OpExport,
		log.FieldSheetsRef, resp.UpdatedRange,
		"rows", len(rows))
	return resp.UpdatedRange, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created report sheet", "sheet", title)
	return nil
}

// quoteTitle renders a tab name for A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, cell := range row {
			vals[j] = cell
		}
		out[i] = vals
	}
	return out
}
