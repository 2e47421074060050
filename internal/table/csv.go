package table

import (
	"io"
	"strings"
)

// ToCSV serializes the dataset's headers and rows as comma-separated text.
// The synthetic row identifier is not written.
func (d *Dataset) ToCSV() string {
	var b strings.Builder
	_ = d.WriteCSV(&b, Options{})
	return b.String()
}

// WriteCSV writes the dataset using the inverse of the parser's quoting rule:
// a field is quoted only when it contains the delimiter, a quote or a line
// break, and embedded quotes are doubled.
func (d *Dataset) WriteCSV(w io.Writer, opts Options) error {
	delim := opts.delimiter()
	if err := writeRecord(w, d.Headers, delim); err != nil {
		return err
	}
	for _, row := range d.Rows {
		if err := writeRecord(w, row.Values(d.Headers), delim); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(w io.Writer, fields []string, delim byte) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(delim)
		}
		if needsQuoting(f, delim) {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
		} else {
			b.WriteString(f)
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func needsQuoting(s string, delim byte) bool {
	return strings.IndexByte(s, delim) >= 0 || strings.ContainsAny(s, "\"\n\r")
}
