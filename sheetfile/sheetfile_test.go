package sheetfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/minios-linux/reskit/table"
)

func TestSeparator(t *testing.T) {
	tests := []struct {
		path string
		want rune
	}{
		{"out.csv", ','},
		{"out.TSV", '\t'},
		{"out.tab", '\t'},
		{"out", ','},
	}
	for _, tt := range tests {
		if got := Separator(tt.path); got != tt.want {
			t.Errorf("Separator(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	rows := [][]string{
		{"Key", ".", ".de"},
		{"Hello", "Hello, \"world\"", "Hallo,\nWelt"},
		{"Empty", "", ""},
	}
	for _, comma := range []rune{',', '\t'} {
		var buf bytes.Buffer
		if err := Encode(&buf, rows, comma); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(buf.Bytes(), comma)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !reflect.DeepEqual(got, rows) {
			t.Fatalf("round trip with %q = %q, want %q", comma, got, rows)
		}
	}
}

func TestDecode_StripsBOMAndAllowsRaggedRows(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, "Key,.\nA\nB,b,extra\n"...)
	rows, err := Decode(data, ',')
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := [][]string{{"Key", "."}, {"A"}, {"B", "b", "extra"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %q, want %q", rows, want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte("Key,\"open\n"), ','); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestWriteRead_Single(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	sheets := []table.Sheet{{Name: "out", Rows: [][]string{{"Project", "Entity", "Key", "."}, {"app", "Strings", "A", "a"}}}}
	if err := Write(path, sheets, table.SingleSheet, ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, bom) || !bytes.Contains(data, []byte("Project\tEntity")) {
		t.Fatalf("file = %q", data)
	}

	got, mode, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if mode != table.SingleSheet {
		t.Fatalf("mode = %v, want single", mode)
	}
	if !reflect.DeepEqual(got, sheets) {
		t.Fatalf("sheets = %v, want %v", got, sheets)
	}
}

func TestWrite_SingleNeedsOneSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := Write(path, nil, table.SingleSheet, ""); err == nil {
		t.Fatal("expected error for zero sheets")
	}
}

func TestWriteRead_PerEntity(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export")
	sheets := []table.Sheet{
		{Name: "Strings", Rows: [][]string{{"Key", "."}, {"A", "a"}}},
		{Name: "res/Menu", Rows: [][]string{{"Key", "."}, {"Open", "Open"}}},
	}
	if err := Write(dir, sheets, table.SheetPerEntity, ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "res%2FMenu.csv")); err != nil {
		t.Fatalf("escaped sheet file missing: %v", err)
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, mode, err := Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if mode != table.SheetPerEntity {
		t.Fatalf("mode = %v, want per-entity", mode)
	}
	// Read orders by file name: "Strings.csv" < "res%2FMenu.csv".
	if !reflect.DeepEqual(got, sheets) {
		t.Fatalf("sheets = %v, want %v", got, sheets)
	}
}

func TestRead_Missing(t *testing.T) {
	if _, _, err := Read(filepath.Join(t.TempDir(), "none.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want not-exist", err)
	}
}
