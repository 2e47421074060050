// Package table provides the in-memory tabular model used by sheetkit:
// a parsed header list plus an ordered sequence of rows, along with the
// delimited-text parser and CSV writer that produce and consume it.
package table

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// IDKey is the reserved column name holding a row's synthetic identifier.
// It never appears in a Dataset's Headers.
const IDKey = "__row_id"

// Row is a single record keyed by header name.
type Row struct {
	ID     int
	Fields map[string]string

	// order is the header list the row was built against. It fixes the
	// member order of the JSON encoding.
	order []string
}

// NewRow returns a row whose JSON encoding lists fields in headers order.
func NewRow(id int, headers []string, fields map[string]string) Row {
	return Row{ID: id, Fields: fields, order: headers}
}

// Get returns the value stored under header, or "" if absent.
func (r Row) Get(header string) string {
	return r.Fields[header]
}

// Values returns the row's values in the order of headers.
func (r Row) Values(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = r.Fields[h]
	}
	return out
}

// MarshalJSON encodes the row as a flat object: the identifier under IDKey,
// then the fields in header order. Fields outside the header list follow in
// sorted key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(strconv.Quote(IDKey))
	buf.WriteByte(':')
	buf.WriteString(strconv.Itoa(r.ID))

	for _, k := range r.keys() {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Fields[k])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Row) keys() []string {
	keys := make([]string, 0, len(r.Fields))
	seen := make(map[string]bool, len(r.order))
	for _, h := range r.order {
		if _, ok := r.Fields[h]; ok && !seen[h] {
			seen[h] = true
			keys = append(keys, h)
		}
	}
	var rest []string
	for k := range r.Fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Dataset is a parsed table. A Dataset is never mutated after construction;
// reloads produce a new one.
type Dataset struct {
	Headers  []string  `json:"headers"`
	Rows     []Row     `json:"rows"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Empty returns a Dataset with no headers and no rows.
func Empty() *Dataset {
	return &Dataset{Headers: []string{}, Rows: []Row{}}
}

// Len returns the number of rows. A nil Dataset has zero rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// IsEmpty reports whether the dataset holds no rows.
func (d *Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// WithSource returns a shallow copy of d tagged with its origin and load time.
func (d *Dataset) WithSource(source string, loadedAt time.Time) *Dataset {
	cp := *d
	cp.Source = source
	cp.LoadedAt = loadedAt
	return &cp
}

// FromRecords builds a Dataset from raw records. The first record is the
// header list; blank records are dropped and every remaining record gets a
// 1-based identifier.
func FromRecords(records [][]string) *Dataset {
	if len(records) == 0 {
		return Empty()
	}

	headers := uniqueHeaders(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		fields := make(map[string]string, len(headers))
		blank := true
		for i, h := range headers {
			v := ""
			if i < len(rec) {
				v = trim(rec[i])
			}
			if v != "" {
				blank = false
			}
			fields[h] = v
		}
		// Values past the last header are dropped, so they cannot keep a
		// record alive.
		if blank {
			continue
		}
		rows = append(rows, NewRow(len(rows)+1, headers, fields))
	}

	return &Dataset{Headers: headers, Rows: rows}
}

func uniqueHeaders(raw []string) []string {
	seen := map[string]bool{IDKey: true}
	headers := make([]string, len(raw))
	for i, h := range raw {
		name := trim(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := 2; seen[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		headers[i] = name
	}
	return headers
}
