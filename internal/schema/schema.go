// Package schema finds the header row of a legacy sheet and maps logical
// columns to cell indexes. Detection is a pure function of the grid.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"salestrack/internal/normalize"
)

var (
	ErrHeaderNotFound = errors.New("header row not found")
	ErrMissingColumns = errors.New("required columns missing")
	ErrUnknownColumn  = errors.New("unknown column")
)

// DefaultScanRows is how many leading rows are searched for a header.
const DefaultScanRows = 20

type Column string

// Strategy records how a column position was decided.
type Strategy interface {
	strategy()
	String() string
}

// ExplicitHeader means the header row named the column.
type ExplicitHeader struct {
	Label string
}

// OffsetFromAnchor means the column was inferred at a fixed distance from
// another, already bound column.
type OffsetFromAnchor struct {
	Anchor Column
	Delta  int
}

func (ExplicitHeader) strategy()   {}
func (OffsetFromAnchor) strategy() {}

func (e ExplicitHeader) String() string {
	return fmt.Sprintf("header %q", e.Label)
}

func (o OffsetFromAnchor) String() string {
	return fmt.Sprintf("%s%+d", o.Anchor, o.Delta)
}

type Binding struct {
	Index    int
	Strategy Strategy
}

type SheetSchema struct {
	HeaderRow int
	Columns   map[Column]Binding
}

func (s SheetSchema) Index(col Column) (int, bool) {
	b, ok := s.Columns[col]
	if !ok {
		return -1, false
	}
	return b.Index, true
}

// Cell returns the trimmed value of col in row, or "" when the column is
// unbound or the row is too short.
func (s SheetSchema) Cell(row []string, col Column) string {
	idx, ok := s.Index(col)
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Inferred lists the columns that were placed by offset rather than header.
func (s SheetSchema) Inferred() []Column {
	cols := make([]Column, 0)
	for col, b := range s.Columns {
		if _, ok := b.Strategy.(OffsetFromAnchor); ok {
			cols = append(cols, col)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
	return cols
}

type ColumnSpec struct {
	Column  Column
	Aliases []string
}

// Fallback binds Target at Anchor's index plus Delta when the header does
// not name Target.
type Fallback struct {
	Target Column
	Anchor Column
	Delta  int
}

// Profile describes one spreadsheet family. Columns are matched in slice
// order and every cell is claimed at most once, so the first of two
// homonymous header cells goes to the earlier column.
type Profile struct {
	Name      string
	ScanRows  int
	Anchor    Column
	AnyOf     []Column
	Columns   []ColumnSpec
	Fallbacks []Fallback
	Required  []Column
}

// Detect scans the first ScanRows rows of grid for a header that contains
// the profile anchor and at least one AnyOf column in another cell, then
// builds the column map and applies the offset fallbacks in order. A
// candidate row that lacks a Required column does not end the scan.
func Detect(grid [][]string, p Profile) (SheetSchema, error) {
	limit := p.ScanRows
	if limit <= 0 {
		limit = DefaultScanRows
	}
	if limit > len(grid) {
		limit = len(grid)
	}

	var missingErr error
	for rowIdx := 0; rowIdx < limit; rowIdx++ {
		tokens := tokenize(grid[rowIdx])
		if !p.qualifies(tokens) {
			continue
		}

		schema := SheetSchema{HeaderRow: rowIdx, Columns: make(map[Column]Binding)}
		claimed := make(map[int]bool)
		for _, spec := range p.Columns {
			if idx, ok := firstMatch(tokens, spec.Aliases, claimed); ok {
				claimed[idx] = true
				schema.Columns[spec.Column] = Binding{Index: idx, Strategy: ExplicitHeader{Label: strings.TrimSpace(grid[rowIdx][idx])}}
			}
		}

		for _, fb := range p.Fallbacks {
			if _, bound := schema.Columns[fb.Target]; bound {
				continue
			}
			anchor, ok := schema.Columns[fb.Anchor]
			if !ok {
				continue
			}
			idx := anchor.Index + fb.Delta
			if idx < 0 || claimed[idx] {
				continue
			}
			claimed[idx] = true
			schema.Columns[fb.Target] = Binding{Index: idx, Strategy: OffsetFromAnchor{Anchor: fb.Anchor, Delta: fb.Delta}}
		}

		missing := make([]string, 0)
		for _, col := range p.Required {
			if _, ok := schema.Columns[col]; !ok {
				missing = append(missing, string(col))
			}
		}
		if len(missing) > 0 {
			missingErr = fmt.Errorf("%w: %s (header at row %d)", ErrMissingColumns, strings.Join(missing, ", "), rowIdx+1)
			continue
		}
		return schema, nil
	}

	if missingErr != nil {
		return SheetSchema{}, missingErr
	}
	return SheetSchema{}, fmt.Errorf("%w in first %d rows", ErrHeaderNotFound, limit)
}

func (p Profile) qualifies(tokens []string) bool {
	specs := make(map[Column][]string, len(p.Columns))
	for _, spec := range p.Columns {
		specs[spec.Column] = spec.Aliases
	}
	anchorIdx, ok := firstMatch(tokens, specs[p.Anchor], nil)
	if !ok {
		return false
	}
	if len(p.AnyOf) == 0 {
		return true
	}
	// A title cell like "Satış Tarihi ve İl Bazında Rapor" holds both.
	taken := map[int]bool{anchorIdx: true}
	for _, col := range p.AnyOf {
		if _, ok := firstMatch(tokens, specs[col], taken); ok {
			return true
		}
	}
	return false
}

func tokenize(row []string) []string {
	tokens := make([]string, len(row))
	for i, cell := range row {
		tokens[i] = normalize.FoldKey(cell)
	}
	return tokens
}

// firstMatch returns the first unclaimed token equal to an alias, then
// falls back to the first token containing an alias as whole words.
func firstMatch(tokens []string, aliases []string, claimed map[int]bool) (int, bool) {
	folded := make([]string, len(aliases))
	for i, alias := range aliases {
		folded[i] = normalize.FoldKey(alias)
	}
	for idx, token := range tokens {
		if token == "" || claimed[idx] {
			continue
		}
		for _, alias := range folded {
			if token == alias {
				return idx, true
			}
		}
	}
	for idx, token := range tokens {
		if token == "" || claimed[idx] {
			continue
		}
		padded := " " + token + " "
		for _, alias := range folded {
			if strings.Contains(padded, " "+alias+" ") {
				return idx, true
			}
		}
	}
	return -1, false
}

// ParseFallbacks reads rules like "item=customer+1,quantity=item+2".
func ParseFallbacks(raw string) ([]Fallback, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rules := make([]Fallback, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		target, expr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("offset rule %q: expected target=anchor+delta", part)
		}
		sign := 1
		anchor, deltaRaw, ok := strings.Cut(expr, "+")
		if !ok {
			anchor, deltaRaw, ok = strings.Cut(expr, "-")
			sign = -1
		}
		if !ok {
			return nil, fmt.Errorf("offset rule %q: missing delta", part)
		}
		delta, err := strconv.Atoi(strings.TrimSpace(deltaRaw))
		if err != nil {
			return nil, fmt.Errorf("offset rule %q: %w", part, err)
		}
		rule := Fallback{
			Target: Column(strings.TrimSpace(target)),
			Anchor: Column(strings.TrimSpace(anchor)),
			Delta:  sign * delta,
		}
		for _, col := range []Column{rule.Target, rule.Anchor} {
			if !slices.Contains(knownColumns, col) {
				return nil, fmt.Errorf("offset rule %q: %w %q", part, ErrUnknownColumn, col)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
