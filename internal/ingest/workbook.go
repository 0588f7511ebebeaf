package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrWorkbookUnreadable = errors.New("workbook unreadable")

var monthSheetPattern = regexp.MustCompile(`(?i)^\d{4}\s+(january|february|march|april|may|june|july|august|september|october|november|december)$`)

// IsMonthSheet reports whether a sheet name looks like "2025 January".
func IsMonthSheet(name string) bool {
	return monthSheetPattern.MatchString(strings.TrimSpace(name))
}

type Sheet struct {
	Name string
	Rows [][]string
}

// ReadWorkbook loads every sheet accepted by keep, in workbook order. Cells
// are read raw so dates arrive as serial numbers rather than formatted text.
func ReadWorkbook(data []byte, keep func(name string) bool) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbookUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	sheets := make([]Sheet, 0)
	for _, name := range f.GetSheetList() {
		if keep != nil && !keep(name) {
			continue
		}
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %s: %v", ErrWorkbookUnreadable, name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}
