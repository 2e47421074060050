package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeRecords builds a Dataset from a JSON array of row-like objects, as
// sent by a caller that parsed the sheet upstream. Header order follows the
// first appearance of each key. An "id" or IDKey member is the caller's row
// identifier and is not treated as a column; rows are renumbered
// positionally.
func DecodeRecords(data []byte) (*Dataset, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Empty(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var (
		headers []string
		index   = map[string]int{}
		objects [][]member
	)
	for dec.More() {
		obj, err := readObject(dec)
		if err != nil {
			return nil, err
		}
		for _, m := range obj {
			if m.key == "id" || m.key == IDKey {
				continue
			}
			if _, ok := index[m.key]; !ok {
				index[m.key] = len(headers)
				headers = append(headers, m.key)
			}
		}
		objects = append(objects, obj)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(objects)+1)
	records = append(records, headers)
	for _, obj := range objects {
		rec := make([]string, len(headers))
		for _, m := range obj {
			if i, ok := index[m.key]; ok {
				rec[i] = m.value
			}
		}
		records = append(records, rec)
	}

	return FromRecords(records), nil
}

type member struct {
	key   string
	value string
}

func readObject(dec *json.Decoder) ([]member, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("could not decode value for %q: %w", key, err)
		}
		out = append(out, member{key: key, value: stringify(v)})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid row data: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("invalid row data: expected %q, got %v", want, tok)
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
