package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/minios-linux/reskit/culture"
)

// Fixed column names.
const (
	ColumnProject = "Project"
	ColumnEntity  = "Entity"
	ColumnKey     = "Key"
	ColumnAction  = "Action"
)

// ActionRemove in the Action column removes the key.
const ActionRemove = "remove"

// Header is the parsed first row of a sheet. Missing fixed columns have
// index -1.
type Header struct {
	Project int
	Entity  int
	Key     int
	Action  int
	Cells   []CultureColumn
	width   int
}

// CultureColumn is a value (".de") or comment ("#.de") column.
type CultureColumn struct {
	Index   int
	Culture culture.Key
	Comment bool
}

// Name returns the header text of the column.
func (c CultureColumn) Name() string {
	return ColumnName(c.Culture, c.Comment)
}

// ColumnName returns the header text for the value or comment column of k:
// "." and "#." for neutral, ".de" and "#.de" otherwise.
func ColumnName(k culture.Key, comment bool) string {
	name := "." + k.Name()
	if comment {
		return "#" + name
	}
	return name
}

var fixedColumns = map[string]func(h *Header) *int{
	strings.ToLower(ColumnProject): func(h *Header) *int { return &h.Project },
	strings.ToLower(ColumnEntity):  func(h *Header) *int { return &h.Entity },
	strings.ToLower(ColumnKey):     func(h *Header) *int { return &h.Key },
	strings.ToLower(ColumnAction):  func(h *Header) *int { return &h.Action },
}

var errNoKeyColumn = errors.New("missing Key column")

// ParseHeader parses a header row. Culture columns that do not parse fail
// with an error wrapping *culture.ParseError.
func ParseHeader(row []string) (*Header, error) {
	h := &Header{Project: -1, Entity: -1, Key: -1, Action: -1, width: len(row)}
	seen := make(map[string]int)

	for i, cell := range row {
		name := strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
		// Columns are compared by what they resolve to, so ".de_DE" repeats
		// ".de-DE".
		canonical := strings.ToLower(name)
		field, fixed := fixedColumns[canonical]
		var col CultureColumn
		if !fixed {
			comment := strings.HasPrefix(name, "#")
			rest := strings.TrimPrefix(name, "#")
			if !strings.HasPrefix(rest, ".") {
				return nil, &ImportError{Row: 1, Column: i + 1, Err: fmt.Errorf("unknown column %q", name)}
			}
			k, err := culture.Parse(rest)
			if err != nil {
				return nil, &ImportError{Row: 1, Column: i + 1, Err: err}
			}
			col = CultureColumn{Index: i, Culture: k, Comment: comment}
			canonical = col.Name()
		}

		if prev, dup := seen[canonical]; dup {
			return nil, &ImportError{Row: 1, Column: i + 1, Err: fmt.Errorf("column %q repeats column %d", name, prev+1)}
		}
		seen[canonical] = i

		if fixed {
			*field(h) = i
			continue
		}
		h.Cells = append(h.Cells, col)
	}

	if h.Key < 0 {
		return nil, &ImportError{Row: 1, Err: errNoKeyColumn}
	}
	return h, nil
}

// ImportError reports a malformed sheet. Nothing is imported when it is
// returned.
type ImportError struct {
	Sheet  string
	Row    int // 1-based, 1 is the header
	Column int // 1-based, 0 when not tied to a column
	Err    error
}

func (e *ImportError) Error() string {
	var b strings.Builder
	if e.Sheet != "" {
		fmt.Fprintf(&b, "sheet %q ", e.Sheet)
	}
	fmt.Fprintf(&b, "row %d", e.Row)
	if e.Column > 0 {
		fmt.Fprintf(&b, " column %d", e.Column)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ImportError) Unwrap() error { return e.Err }
