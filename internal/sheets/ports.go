package sheets

import (
	"context"
	"errors"
)

// ErrDisabled is returned by callers when no spreadsheet is configured.
var ErrDisabled = errors.New("sheets export disabled")

// Ports for outbound adapters.
type (
	// ReportWriter replaces the content of one tab with rows.
	ReportWriter interface {
		WriteReport(ctx context.Context, sheetTitle string, rows [][]string) (rangeRef string, err error)
	}
)
