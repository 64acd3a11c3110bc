// Package tabular implements the on-disk tabular interchange format used by
// the migration pipeline: UTF-8 text, comma-separated, every field wrapped in
// double quotes, first line the header, one row per line.
//
// The format is deliberately not RFC 4180. Embedded commas and newlines
// inside values are not supported (decoding splits each line on raw commas),
// and a NULL source value is indistinguishable from an empty string after a
// round trip. Both limitations are documented on the codec functions; callers
// moving data that needs them must use a different format.
package tabular

import "errors"

// ErrRaggedRow indicates a data row whose field count does not match the
// header. It is a malformed-input (client) error.
var ErrRaggedRow = errors.New("tabular: row width does not match header")

// ErrNoHeader indicates input with no header line.
var ErrNoHeader = errors.New("tabular: missing header line")

// Dataset is the in-memory form of one table: an ordered list of column
// names and an ordered sequence of rows. Every row has exactly as many
// fields as there are columns; decoding relies on positional indexing.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1 when the
// dataset has no such column. Matching is exact; headers are stored with
// their quoting already stripped.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AppendRow adds a row after validating its width against the header.
func (d *Dataset) AppendRow(fields []string) error {
	if len(fields) != len(d.Columns) {
		return ErrRaggedRow
	}
	d.Rows = append(d.Rows, fields)
	return nil
}
