package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ports "cuzdan/internal/sheets"
)

// Store keeps written reports in memory, one tab per title.
type Store struct {
	mu   sync.Mutex
	tabs map[string][][]string
}

var _ ports.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string][][]string)}
}

// WriteReport replaces the tab content and returns an A1 style reference.
func (s *Store) WriteReport(ctx context.Context, sheetTitle string, rows [][]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title := strings.TrimSpace(sheetTitle)
	if title == "" {
		title = "Report"
	}

	copied := make([][]string, len(rows))
	width := 0
	for i, row := range rows {
		copied[i] = append([]string(nil), row...)
		if len(row) > width {
			width = len(row)
		}
	}

	s.mu.Lock()
	s.tabs[title] = copied
	s.mu.Unlock()

	if len(rows) == 0 || width == 0 {
		return fmt.Sprintf("mem:%s!A1", title), nil
	}
	return fmt.Sprintf("mem:%s!A1:%s%d", title, column(width), len(rows)), nil
}

// Tab returns a copy of what was last written to title.
func (s *Store) Tab(title string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tabs[title]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out, true
}

// column converts a 1-based index to a spreadsheet column label.
func column(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
