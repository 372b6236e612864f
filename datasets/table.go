package datasets

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// table is a chunk of a source file parsed as rows of string cells. Cells
// are never converted to numbers: the table only exists to be projected and
// written back out as text.
type table struct {
	header []string
	rows   [][]string
}

// parseTable parses text as comma-delimited rows. When header is nil the
// first record of text is the header. Rows shorter than the header (the
// last row of a chunk is usually cut) are padded with empty cells; longer
// rows fail the parse.
func parseTable(text string, header []string) (*table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTableParse, err)
	}
	if header == nil {
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: chunk has no header row", ErrTableParse)
		}
		header, records = records[0], records[1:]
	}
	t := &table{header: header, rows: records}
	width := len(header)
	for i, row := range t.rows {
		if len(row) > width {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrTableParse, i, len(row), width)
		}
		for len(row) < width {
			row = append(row, "")
		}
		t.rows[i] = row
	}
	return t, nil
}

// numColumns returns the number of columns.
func (t *table) numColumns() int {
	return len(t.header)
}

// dropColumn removes column i from the header and every row. i == -1 is a
// no-op.
func (t *table) dropColumn(i int) error {
	if i == -1 {
		return nil
	}
	if i < 0 || i >= len(t.header) {
		return fmt.Errorf("%w: label column %d outside a header of %d columns", ErrTableParse, i, len(t.header))
	}
	t.header = removeAt(t.header, i)
	for r, row := range t.rows {
		t.rows[r] = removeAt(row, i)
	}
	return nil
}

func removeAt(s []string, i int) []string {
	out := make([]string, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// project returns a table holding only cols, in the given order.
func (t *table) project(cols []int) *table {
	p := &table{
		header: make([]string, len(cols)),
		rows:   make([][]string, len(t.rows)),
	}
	for j, c := range cols {
		p.header[j] = t.header[c]
	}
	for r, row := range t.rows {
		out := make([]string, len(cols))
		for j, c := range cols {
			out[j] = row[c]
		}
		p.rows[r] = out
	}
	return p
}

// marshal writes the table as comma-delimited text with a regenerated
// 0-based row index as the first column. The index header cell is empty.
func (t *table) marshal() (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	record := make([]string, 0, len(t.header)+1)
	record = append(record, "")
	record = append(record, t.header...)
	if err := w.Write(record); err != nil {
		return "", err
	}
	for i, row := range t.rows {
		record = record[:0]
		record = append(record, strconv.Itoa(i))
		record = append(record, row...)
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
