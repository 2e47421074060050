// Package query implements the read-only operations a command can run
// against a dataset. Every function here is pure: the dataset passed in is
// never modified and the returned rows share no mutable state with it.
package query

import (
	"errors"
	"strings"

	"github.com/klytics/sheetkit/internal/table"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	MaxSearchRows   = 100
)

var (
	// ErrEmptyTerm is returned by Search when the term is blank.
	ErrEmptyTerm = errors.New("search term is empty")
	// ErrNothingToExport is returned by ExportCSV for a dataset without rows.
	ErrNothingToExport = errors.New("no data to export")
)

// Page is a slice of rows together with the size of the set it was taken from.
type Page struct {
	Rows  []table.Row
	Total int
}

// ClampRows maps a requested row count onto [1, MaxPageSize]. Zero means
// "unspecified" and yields DefaultPageSize; a negative request yields 1.
func ClampRows(maxRows int) int {
	switch {
	case maxRows == 0:
		return DefaultPageSize
	case maxRows < 1:
		return 1
	case maxRows > MaxPageSize:
		return MaxPageSize
	default:
		return maxRows
	}
}

// Paginate returns the first ClampRows(maxRows) rows of ds. Total is always
// the full dataset size.
func Paginate(ds *table.Dataset, maxRows int) Page {
	n := ds.Len()
	limit := ClampRows(maxRows)
	if limit > n {
		limit = n
	}
	if n == 0 {
		return Page{Rows: []table.Row{}}
	}
	return Page{Rows: ds.Rows[:limit:limit], Total: n}
}

// Search returns the rows where any field contains term, ignoring case.
// Only the first MaxSearchRows matches are returned; Total counts all of them.
func Search(ds *table.Dataset, term string) (Page, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return Page{}, ErrEmptyTerm
	}

	page := Page{Rows: []table.Row{}}
	if ds == nil {
		return page, nil
	}
	for _, row := range ds.Rows {
		if !rowContains(row, needle) {
			continue
		}
		page.Total++
		if len(page.Rows) < MaxSearchRows {
			page.Rows = append(page.Rows, row)
		}
	}
	return page, nil
}

func rowContains(row table.Row, needle string) bool {
	for _, v := range row.Fields {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// ExportCSV serializes ds as CSV text without the row identifier.
func ExportCSV(ds *table.Dataset) (string, error) {
	if ds.Len() == 0 {
		return "", ErrNothingToExport
	}
	return ds.ToCSV(), nil
}

// SampleRows returns up to n leading rows of ds.
func SampleRows(ds *table.Dataset, n int) []table.Row {
	if n <= 0 || ds.Len() == 0 {
		return []table.Row{}
	}
	if n > ds.Len() {
		n = ds.Len()
	}
	return ds.Rows[:n:n]
}
