package tabular

import (
	"bufio"
	"io"
	"strings"
)

// Encode writes the dataset in the quoted comma-delimited format. The header
// row is quoted under the same rule as data rows so that Decode(Encode(d))
// reproduces d exactly.
//
// NULL handling is lossy by design: callers encode a NULL source value as an
// empty string, which decodes back as an empty string, not a reinstated NULL.
func Encode(d *Dataset, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, d.Columns); err != nil {
		return err
	}
	for _, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return ErrRaggedRow
		}
		if err := writeRecord(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// EncodeString is a convenience wrapper around Encode.
func EncodeString(d *Dataset) (string, error) {
	var sb strings.Builder
	if err := Encode(d, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Decode parses quoted comma-delimited text into a Dataset. The first line is
// the header. Each line is split on raw commas; a field is recovered by
// trimming one layer of surrounding quotes and collapsing doubled quotes.
// Values with embedded commas or newlines are therefore misparsed; that is a
// known limitation of the format, not of this reader.
//
// Rows whose field count differs from the header fail with ErrRaggedRow.
func Decode(r io.Reader) (*Dataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoHeader
	}
	d := &Dataset{Columns: splitRecord(sc.Text())}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue // tolerate a trailing blank line
		}
		if err := d.AppendRow(splitRecord(line)); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeString is a convenience wrapper around Decode.
func DecodeString(s string) (*Dataset, error) {
	return Decode(strings.NewReader(s))
}

// RowWriter streams one record at a time, writing the header up front so an
// exporter never has to hold a full result set in memory.
type RowWriter struct {
	bw      *bufio.Writer
	columns int
}

// NewRowWriter writes the quoted header immediately and returns a writer for
// the data rows.
func NewRowWriter(w io.Writer, columns []string) (*RowWriter, error) {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, columns); err != nil {
		return nil, err
	}
	return &RowWriter{bw: bw, columns: len(columns)}, nil
}

// WriteRow appends one data row. The field count must match the header.
func (rw *RowWriter) WriteRow(fields []string) error {
	if len(fields) != rw.columns {
		return ErrRaggedRow
	}
	return writeRecord(rw.bw, fields)
}

// Flush drains buffered output to the underlying writer.
func (rw *RowWriter) Flush() error { return rw.bw.Flush() }

func writeRecord(bw *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := bw.WriteByte(','); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('"'); err != nil {
			return err
		}
		if _, err := bw.WriteString(strings.ReplaceAll(f, `"`, `""`)); err != nil {
			return err
		}
		if err := bw.WriteByte('"'); err != nil {
			return err
		}
	}
	return bw.WriteByte('\n')
}

func splitRecord(line string) []string {
	line = strings.TrimSuffix(line, "\r")
	parts := strings.Split(line, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = unquoteField(p)
	}
	return out
}

// unquoteField trims exactly one layer of surrounding quotes (when present)
// and collapses doubled quotes back to literal ones. Legacy files with
// unquoted headers decode unchanged.
func unquoteField(f string) string {
	if len(f) >= 2 && f[0] == '"' && f[len(f)-1] == '"' {
		f = f[1 : len(f)-1]
	}
	return strings.ReplaceAll(f, `""`, `"`)
}
