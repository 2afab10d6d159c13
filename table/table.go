// Package table is a small in-memory CSV table store: load, filter by
// key, join, and atomic save.
package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Table is a header row plus string cells.  Every row has one cell per
// column.
type Table struct {
	Columns []string
	Rows    [][]string
}

func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Load reads a CSV file whose first record is the header.
func Load(path string) (*Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", path)
	}
	defer fh.Close()
	t, err := Read(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s", path)
	}
	log.Debugf("loaded table %s: %d rows", path, len(t.Rows))
	return t, nil
}

// Read parses CSV from r.
func Read(r io.Reader) (*Table, error) {
	rd := csv.NewReader(r)
	records, err := rd.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

// Write emits the table as CSV.
func (t *Table) Write(w io.Writer) error {
	wr := csv.NewWriter(w)
	err := wr.Write(t.Columns)
	if err != nil {
		return err
	}
	err = wr.WriteAll(t.Rows)
	if err != nil {
		return err
	}
	return wr.Error()
}

// Save atomically replaces path with the table's CSV.
func (t *Table) Save(path string) error {
	var buf bytes.Buffer
	err := t.Write(&buf)
	if err != nil {
		return err
	}
	err = renameio.WriteFile(path, buf.Bytes(), 0644)
	if err != nil {
		return errors.Wrapf(err, "save table %s", path)
	}
	log.Debugf("saved table %s: %d rows", path, len(t.Rows))
	return nil
}

// Column returns the index of name, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Value returns the cell of row in column name, or "" if the column
// is absent.
func (t *Table) Value(row int, name string) string {
	i := t.Column(name)
	if i < 0 {
		return ""
	}
	return t.Rows[row][i]
}

// Append adds a row, which must have one cell per column.
func (t *Table) Append(row ...string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Filter returns the indices of rows whose column equals val.
func (t *Table) Filter(column, val string) (rows []int, err error) {
	i := t.Column(column)
	if i < 0 {
		return nil, fmt.Errorf("no column %q", column)
	}
	for n, row := range t.Rows {
		if row[i] == val {
			rows = append(rows, n)
		}
	}
	return
}

// Join left-joins b onto a on the named columns.  The result has a's
// columns followed by b's non-key columns; rows of a without a match
// get empty cells, rows with several matches repeat.
func Join(a, b *Table, on ...string) (*Table, error) {
	ai := make([]int, len(on))
	bi := make([]int, len(on))
	isKey := map[int]bool{}
	for n, col := range on {
		ai[n], bi[n] = a.Column(col), b.Column(col)
		if ai[n] < 0 || bi[n] < 0 {
			return nil, fmt.Errorf("join column %q missing", col)
		}
		isKey[bi[n]] = true
	}
	var extra []int
	out := New(a.Columns...)
	for i, col := range b.Columns {
		if !isKey[i] {
			extra = append(extra, i)
			out.Columns = append(out.Columns, col)
		}
	}

	key := func(row []string, idx []int) string {
		var buf bytes.Buffer
		wr := csv.NewWriter(&buf)
		cells := make([]string, len(idx))
		for n, i := range idx {
			cells[n] = row[i]
		}
		wr.Write(cells)
		wr.Flush()
		return buf.String()
	}
	index := map[string][][]string{}
	for _, row := range b.Rows {
		k := key(row, bi)
		index[k] = append(index[k], row)
	}

	for _, row := range a.Rows {
		matches := index[key(row, ai)]
		if len(matches) == 0 {
			joined := append(append([]string(nil), row...), make([]string, len(extra))...)
			out.Rows = append(out.Rows, joined)
			continue
		}
		for _, m := range matches {
			joined := append([]string(nil), row...)
			for _, i := range extra {
				joined = append(joined, m[i])
			}
			out.Rows = append(out.Rows, joined)
		}
	}
	return out, nil
}
