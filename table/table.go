// Package table renders aligned text tables for terminal output.
package table

import (
	"fmt"
	"io"
	"strings"
)

// FormatFunc colorizes a cell after its width is measured
type FormatFunc func(value string) string

// Column defines a column's properties
type Column struct {
	Header     string
	BlankValue string // shown for empty cells, "-" by default
	Format     FormatFunc
	MinWidth   int
	AlignRight bool
}

type row struct {
	cells     []string
	separator bool
}

// Table collects rows and renders them with padded columns
type Table struct {
	columns []Column
	rows    []row
	widths  []int
}

func New(cols ...Column) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i := range t.columns {
		if t.columns[i].BlankValue == "" {
			t.columns[i].BlankValue = "-"
		}
		t.widths[i] = max(t.columns[i].MinWidth, visibleLength(t.columns[i].Header))
	}
	return t
}

// AddRow adds a row. Missing or empty cells get the column's BlankValue; extra cells are dropped.
func (t *Table) AddRow(data ...string) {
	cells := make([]string, len(t.columns))
	for i := range cells {
		if i < len(data) && data[i] != "" {
			cells[i] = data[i]
		} else {
			cells[i] = t.columns[i].BlankValue
		}
		t.widths[i] = max(t.widths[i], visibleLength(cells[i]))
	}
	t.rows = append(t.rows, row{cells: cells})
}

// AddSeparator adds a dashed line
func (t *Table) AddSeparator() {
	t.rows = append(t.rows, row{separator: true})
}

// Len is the number of data rows.
func (t *Table) Len() int {
	n := 0
	for _, r := range t.rows {
		if !r.separator {
			n++
		}
	}
	return n
}

// Render writes the table to the given writer
func (t *Table) Render(w io.Writer) error {
	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = t.pad(i, col.Header)
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, t.separatorLine()); err != nil {
		return err
	}

	for _, r := range t.rows {
		line := t.separatorLine()
		if !r.separator {
			formatted := make([]string, len(r.cells))
			for i, val := range r.cells {
				formatted[i] = t.pad(i, val)
				if f := t.columns[i].Format; f != nil {
					formatted[i] = t.pad(i, f(val))
				}
			}
			line = strings.TrimRight(strings.Join(formatted, " "), " ")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) String() string {
	var b strings.Builder
	_ = t.Render(&b)
	return b.String()
}

func (t *Table) separatorLine() string {
	sep := make([]string, len(t.columns))
	for i := range sep {
		sep[i] = strings.Repeat("-", t.widths[i])
	}
	return strings.Join(sep, " ")
}

func (t *Table) pad(col int, s string) string {
	gap := t.widths[col] - visibleLength(s)
	if gap <= 0 {
		return s
	}
	if t.columns[col].AlignRight {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

// visibleLength counts runes outside ANSI escape sequences.
func visibleLength(s string) int {
	length := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			length++
		}
	}
	return length
}
