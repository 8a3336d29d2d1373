// Package sheetfile stores table sheets as delimited text files.
//
// A single sheet is one file. Per-entity sheets are a directory with one
// file per sheet, named after the path-escaped sheet name:
//
//	export/
//	  Strings.csv
//	  res%2FMenu.csv
//
// Files ending in .tsv or .tab are tab separated, everything else uses
// commas. A UTF-8 byte order mark is written so spreadsheet programs pick
// the right encoding, and stripped on read.
package sheetfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/reskit/table"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Separator returns the field separator used for path.
func Separator(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return '\t'
	}
	return ','
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode writes rows to w.
func Encode(w io.Writer, rows [][]string, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("encoding sheet: %w", err)
	}
	return nil
}

// Decode reads all rows from data. Rows may differ in length.
func Decode(data []byte, comma rune) ([][]string, error) {
	data = bytes.TrimPrefix(data, bom)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decoding sheet: %w", err)
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// Write stores sheets at path. In single-sheet mode path is a file and
// exactly one sheet is expected. In per-entity mode path is a directory and
// ext (".csv" when empty) names the files.
func Write(path string, sheets []table.Sheet, mode table.Mode, ext string) error {
	if mode == table.SingleSheet {
		if len(sheets) != 1 {
			return fmt.Errorf("writing %s: single-sheet mode needs one sheet, got %d", path, len(sheets))
		}
		return writeSheet(path, sheets[0].Rows)
	}

	if ext == "" {
		ext = ".csv"
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	for _, s := range sheets {
		if err := writeSheet(filepath.Join(path, url.PathEscape(s.Name)+ext), s.Rows); err != nil {
			return err
		}
	}
	return nil
}

func writeSheet(path string, rows [][]string) error {
	var buf bytes.Buffer
	buf.Write(bom)
	if err := Encode(&buf, rows, Separator(path)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Read loads sheets from path. A directory yields one sheet per .csv, .tsv
// or .tab file in name order, with the mode SheetPerEntity; a file yields a
// single sheet and SingleSheet.
func Read(path string) ([]table.Sheet, table.Mode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, table.SingleSheet, fmt.Errorf("reading %s: %w", path, err)
	}
	if !info.IsDir() {
		s, err := readSheet(path)
		if err != nil {
			return nil, table.SingleSheet, err
		}
		return []table.Sheet{s}, table.SingleSheet, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, table.SheetPerEntity, fmt.Errorf("reading %s: %w", path, err)
	}
	var names []string
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(de.Name())) {
		case ".csv", ".tsv", ".tab":
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	sheets := make([]table.Sheet, 0, len(names))
	for _, n := range names {
		s, err := readSheet(filepath.Join(path, n))
		if err != nil {
			return nil, table.SheetPerEntity, err
		}
		sheets = append(sheets, s)
	}
	return sheets, table.SheetPerEntity, nil
}

func readSheet(path string) (table.Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return table.Sheet{}, fmt.Errorf("reading %s: %w", path, err)
	}
	rows, err := Decode(data, Separator(path))
	if err != nil {
		return table.Sheet{}, fmt.Errorf("reading %s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name, err := url.PathUnescape(stem)
	if err != nil {
		name = stem
	}
	return table.Sheet{Name: name, Rows: rows}, nil
}
