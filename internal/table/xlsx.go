package table

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// ReadXLSXFile loads one worksheet of an .xlsx file as a Dataset. An empty
// sheet name selects the first sheet.
func ReadXLSXFile(path, sheet string) (*Dataset, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s — is this a valid .xlsx file? %w", path, err)
	}
	defer f.Close()

	return readSheet(f, sheet)
}

// ReadXLSX loads one worksheet from .xlsx bytes.
func ReadXLSX(data []byte, sheet string) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not read Excel data: %w", err)
	}
	defer f.Close()

	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) (*Dataset, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Empty(), nil
	}

	name := sheets[0]
	if sheet != "" {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			return nil, fmt.Errorf("sheet %q not found — available sheets: %v", sheet, sheets)
		}
		name = sheet
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
	}
	return FromRecords(rows), nil
}

// WriteXLSXFile writes the dataset to a single-sheet .xlsx file, header row
// first. The synthetic row identifier is not written.
func (d *Dataset) WriteXLSXFile(path, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("could not rename sheet: %w", err)
	}

	write := func(rowIdx int, values []string) error {
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return fmt.Errorf("invalid cell coordinates: %w", err)
			}
			if err := f.SetCellStr(sheet, cell, v); err != nil {
				return fmt.Errorf("could not set cell %s: %w", cell, err)
			}
		}
		return nil
	}

	if err := write(0, d.Headers); err != nil {
		return err
	}
	for i, row := range d.Rows {
		if err := write(i+1, row.Values(d.Headers)); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("could not save %s: %w", path, err)
	}
	return nil
}
