package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/hurttlocker/ownerscan/internal/extract"
)

// XLSXContentType is the media type for workbook downloads.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const sheetName = "Proprietarios"

// FormatXLSX renders records as a single-sheet workbook with the same two
// columns as the CSV export. Cells are written as strings so phone numbers
// keep their formatting.
func FormatXLSX(records []extract.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := []string{HeaderName, HeaderPhone}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
	}

	for i, r := range records {
		row := i + 2
		for col, v := range []string{r.Name, r.Phone} {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellStr(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("xlsx row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 40) // name
	_ = f.SetColWidth(sheetName, "B", "B", 20) // phone

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes FormatXLSX output to w.
func WriteXLSX(w io.Writer, records []extract.Record) error {
	data, err := FormatXLSX(records)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadXLSX reads records back from a workbook produced by FormatXLSX.
func ReadXLSX(r io.Reader) ([]extract.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("xlsx rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx: missing header row")
	}

	out := make([]extract.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var rec extract.Record
		if len(row) > 0 {
			rec.Name = row[0]
		}
		if len(row) > 1 {
			rec.Phone = row[1]
		}
		out = append(out, rec)
	}
	return out, nil
}
