package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/conduit-lang/propsheet/internal/columns"
	"github.com/conduit-lang/propsheet/internal/property"
)

// Property sheet column names
const (
	ColumnName        = "name"
	ColumnValue       = "value"
	ColumnType        = "type"
	ColumnDescription = "description"
)

// PropertyView is the column view id of the property sheet
const PropertyView = "properties"

// DefaultPropertyColumns is the layout used before any state was saved
func DefaultPropertyColumns() []columns.State {
	return []columns.State{
		{Name: ColumnName, Visible: true, Order: 0},
		{Name: ColumnValue, Visible: true, Order: 1},
		{Name: ColumnType, Visible: true, Order: 2},
		{Name: ColumnDescription, Visible: false, Order: 3},
	}
}

var columnHeaders = map[string]string{
	ColumnName:        "Property",
	ColumnValue:       "Value",
	ColumnType:        "Type",
	ColumnDescription: "Description",
}

// Row maps column names to cell text
type Row map[string]string

// Table renders rows under a column layout. Hidden columns are skipped,
// visible ones are shown in layout order, and a positive width clips or pads
// the column to exactly that many characters.
type Table struct {
	writer  io.Writer
	columns []columns.State
	rows    []Row
	bold    map[int]bool
	noColor bool
}

// TableOptions configures table behavior
type TableOptions struct {
	NoColor bool
}

// NewTable creates a table with the given column layout
func NewTable(w io.Writer, layout []columns.State, opts *TableOptions) *Table {
	noColor := false
	if opts != nil {
		noColor = opts.NoColor
	}

	visible := make([]columns.State, 0, len(layout))
	for _, c := range layout {
		if c.Visible {
			visible = append(visible, c)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].Order < visible[j].Order
	})

	return &Table{
		writer:  w,
		columns: visible,
		bold:    make(map[int]bool),
		noColor: noColor,
	}
}

// Columns returns the visible columns in display order
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// AddRow adds a row to the table
func (t *Table) AddRow(row Row) {
	t.rows = append(t.rows, row)
}

// AddHeading adds a row rendered in bold
func (t *Table) AddHeading(row Row) {
	t.bold[len(t.rows)] = true
	t.rows = append(t.rows, row)
}

// Render renders the table to the writer
func (t *Table) Render() {
	if len(t.columns) == 0 {
		return
	}

	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		if c.Width > 0 {
			widths[i] = c.Width
			continue
		}
		widths[i] = utf8.RuneCountInString(header(c.Name))
		for _, row := range t.rows {
			if n := utf8.RuneCountInString(row[c.Name]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	headColor := t.color(color.Bold, color.FgCyan)
	for i, c := range t.columns {
		headColor.Fprint(t.writer, fit(header(c.Name), widths[i]))
		if i < len(t.columns)-1 {
			fmt.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	gray := t.color(color.FgHiBlack)
	for i, width := range widths {
		gray.Fprint(t.writer, strings.Repeat("─", width))
		if i < len(widths)-1 {
			gray.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	groupColor := t.color(color.Bold)
	for r, row := range t.rows {
		var line strings.Builder
		for i, c := range t.columns {
			line.WriteString(fit(row[c.Name], widths[i]))
			if i < len(t.columns)-1 {
				line.WriteString("  ")
			}
		}
		text := strings.TrimRight(line.String(), " ")
		if t.bold[r] {
			groupColor.Fprintln(t.writer, text)
		} else {
			fmt.Fprintln(t.writer, text)
		}
	}
}

func (t *Table) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

func header(name string) string {
	if h, ok := columnHeaders[name]; ok {
		return h
	}
	return name
}

// fit pads s with spaces, or clips it with an ellipsis, to width runes
func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n == width {
		return s
	}
	if n < width {
		return s + strings.Repeat(" ", width-n)
	}
	if width <= 1 {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-1]) + "…"
}

// ValueFunc renders the current value of an attribute
type ValueFunc func(d *property.Descriptor) string

// RenderProperties renders tree as a property sheet using layout. Group rows
// are bold and their members are indented below them.
func RenderProperties(w io.Writer, tree *property.Tree, value ValueFunc, layout []columns.State, opts *TableOptions) {
	table := NewTable(w, layout, opts)
	tree.Walk(func(depth int, item property.Item) {
		indent := strings.Repeat("  ", depth)
		if item.Group != nil {
			row := Row{ColumnName: indent + item.Group.Name}
			if d := item.Group.Descriptor; d != nil {
				row[ColumnDescription] = d.Description
			}
			table.AddHeading(row)
			return
		}

		d := item.Descriptor
		table.AddRow(Row{
			ColumnName:        indent + d.DisplayName,
			ColumnValue:       value(d),
			ColumnType:        string(d.DataType),
			ColumnDescription: d.Description,
		})
	})
	table.Render()
}

// KeyValueTable renders aligned key-value pairs
type KeyValueTable struct {
	writer  io.Writer
	rows    [][2]string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key, value string) {
	t.rows = append(t.rows, [2]string{key, value})
}

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	maxKeyWidth := 0
	for _, row := range t.rows {
		if n := utf8.RuneCountInString(row[0]); n > maxKeyWidth {
			maxKeyWidth = n
		}
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for _, row := range t.rows {
		cyan.Fprint(t.writer, fit(row[0]+":", maxKeyWidth+1))
		fmt.Fprintf(t.writer, " %s\n", row[1])
	}
}

// Header renders a styled title with an underline
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		gray.DisableColor()
	}
	bold.Fprintln(w, title)
	gray.Fprintln(w, strings.Repeat("─", utf8.RuneCountInString(title)))
}
