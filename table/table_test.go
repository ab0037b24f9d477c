package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRender(t *testing.T) {
	tab := New(
		Column{Header: "Address"},
		Column{Header: "Value", AlignRight: true},
		Column{Header: "Note"},
	)
	tab.AddRow("0x1000", "1234")
	tab.AddSeparator()
	tab.AddRow("0x20", "7", "hp")

	want := "" +
		"Address Value Note\n" +
		"------- ----- ----\n" +
		"0x1000   1234 -\n" +
		"------- ----- ----\n" +
		"0x20        7 hp\n"
	if diff := cmp.Diff(want, tab.String()); diff != "" {
		t.Errorf("Render() mismatch (-want +got):\n%s", diff)
	}
	if tab.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tab.Len())
	}
}

func TestFormatDoesNotAffectWidth(t *testing.T) {
	red := func(s string) string { return "\033[31m" + s + "\033[0m" }
	tab := New(Column{Header: "A", Format: red}, Column{Header: "B"})
	tab.AddRow("xyz", "1")

	want := "" +
		"A   B\n" +
		"--- -\n" +
		"\033[31mxyz\033[0m 1\n"
	if diff := cmp.Diff(want, tab.String()); diff != "" {
		t.Errorf("Render() mismatch (-want +got):\n%s", diff)
	}
}
