package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/conduit-lang/propsheet/internal/columns"
	"github.com/conduit-lang/propsheet/internal/property"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, DefaultPropertyColumns(), &TableOptions{NoColor: true})

	table.AddRow(Row{ColumnName: "Name", ColumnValue: "PostgreSQL", ColumnType: "string", ColumnDescription: "hidden"})
	table.AddRow(Row{ColumnName: "Port", ColumnValue: "5432", ColumnType: "int"})
	table.Render()

	output := buf.String()
	for _, want := range []string{"Property", "Value", "Type", "PostgreSQL", "5432", "─"} {
		if !strings.Contains(output, want) {
			t.Errorf("table output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "hidden") || strings.Contains(output, "Description") {
		t.Errorf("hidden column rendered:\n%s", output)
	}
}

func TestTableColumnOrderAndWidth(t *testing.T) {
	var buf bytes.Buffer
	layout := []columns.State{
		{Name: ColumnName, Visible: true, Order: 1},
		{Name: ColumnValue, Visible: true, Order: 0, Width: 6},
	}
	table := NewTable(&buf, layout, &TableOptions{NoColor: true})
	if got := table.Columns(); len(got) != 2 || got[0] != ColumnValue || got[1] != ColumnName {
		t.Fatalf("Columns() = %v", got)
	}

	table.AddRow(Row{ColumnName: "Vendor", ColumnValue: "PostgreSQL Global"})
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "Value ") {
		t.Errorf("value column should come first: %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "Postg…") {
		t.Errorf("value should be clipped to 6 runes: %q", lines[2])
	}
}

func TestTableNoVisibleColumns(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []columns.State{{Name: ColumnName}}, &TableOptions{NoColor: true})
	table.AddRow(Row{ColumnName: "x"})
	table.Render()

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

type sheetNetwork struct {
	Host string `prop:"order=1"`
	Port int    `prop:"order=2"`
}

type sheet struct {
	Name    string       `prop:"order=1,category=General" propdesc:"Display name"`
	Network sheetNetwork `prop:"order=2,category=General,group"`
}

func TestRenderProperties(t *testing.T) {
	target := &sheet{Name: "local", Network: sheetNetwork{Host: "db", Port: 5432}}
	descriptors := property.NewExtractor().Extract(target, nil)
	tree := property.BuildTree(descriptors, true)

	layout := DefaultPropertyColumns()
	layout[3].Visible = true

	var buf bytes.Buffer
	RenderProperties(&buf, tree, func(d *property.Descriptor) string {
		v, err := d.Value(context.Background(), target)
		if err != nil {
			return err.Error()
		}
		return property.FormatValue(v)
	}, layout, &TableOptions{NoColor: true})

	output := buf.String()
	for _, want := range []string{"local", "Display name", "  Host", "db", "5432"} {
		if !strings.Contains(output, want) {
			t.Errorf("sheet missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "General") {
		t.Errorf("single category should be collapsed:\n%s", output)
	}
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Version", "dev")
	kv.AddRow("Go", "go1.23")
	kv.Render()

	want := "Version: dev\nGo:      go1.23\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"abc", 3, "abc"},
		{"abc", 5, "abc  "},
		{"abcdef", 4, "abc…"},
		{"abc", 1, "a"},
		{"héllo", 3, "hé…"},
	}
	for _, tt := range tests {
		if got := fit(tt.in, tt.width); got != tt.want {
			t.Errorf("fit(%q, %d) = %q; want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "driver", true)
	if buf.String() != "driver\n──────\n" {
		t.Errorf("unexpected header %q", buf.String())
	}
}
