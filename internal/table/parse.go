package table

import "strings"

// Options configures delimited-text parsing and writing.
type Options struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter byte
}

func (o Options) delimiter() byte {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Parse converts comma-separated text into a Dataset. It never fails:
// malformed quoting is folded into the last field.
func Parse(text string) *Dataset {
	return ParseWith(text, Options{})
}

// ParseWith is Parse with an explicit delimiter.
func ParseWith(text string, opts Options) *Dataset {
	return FromRecords(SplitRecords(text, opts))
}

// SplitRecords tokenizes delimited text into raw records without trimming
// or dropping blank lines.
//
// A quote opens a quoted field, a doubled quote inside it is a literal
// quote, and a lone quote closes it. Carriage returns outside quotes are
// ignored. An unterminated quote runs to end of input.
func SplitRecords(text string, opts Options) [][]string {
	delim := opts.delimiter()

	var (
		records  [][]string
		record   []string
		field    strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inQuotes {
			switch {
			case c == '"' && i+1 < len(text) && text[i+1] == '"':
				field.WriteByte('"')
				i++
			case c == '"':
				inQuotes = false
			default:
				field.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inQuotes = true
		case delim:
			record = append(record, field.String())
			field.Reset()
		case '\n':
			record = append(record, field.String())
			records = append(records, record)
			record = nil
			field.Reset()
		case '\r':
		default:
			field.WriteByte(c)
		}
	}

	if field.Len() > 0 || len(record) > 0 {
		record = append(record, field.String())
		records = append(records, record)
	}

	return records
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
