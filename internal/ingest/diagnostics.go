package ingest

import "fmt"

// Diagnostics keeps the first Max messages and counts the rest.
type Diagnostics struct {
	Max       int
	Messages  []string
	Truncated int
}

func NewDiagnostics(limit int) Diagnostics {
	if limit < 1 {
		limit = 50
	}
	return Diagnostics{Max: limit, Messages: make([]string, 0, min(limit, 16))}
}

// With returns the diagnostics with msg appended, or counted as truncated
// once the cap is reached.
func (d Diagnostics) With(msg string) Diagnostics {
	if len(d.Messages) >= d.Max {
		d.Truncated++
		return d
	}
	d.Messages = append(d.Messages, msg)
	return d
}

func rowMessage(sheet string, row int, err error) string {
	return fmt.Sprintf("sheet %q row %d: %v", sheet, row, err)
}

func rowNote(sheet string, row int, note string) string {
	return fmt.Sprintf("sheet %q row %d: %s", sheet, row, note)
}

func sheetMessage(sheet string, err error) string {
	return fmt.Sprintf("sheet %q: %v", sheet, err)
}
