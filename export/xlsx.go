package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the single sheet WriteXLSX fills.
const SheetName = "Sheet1"

// WriteXLSX writes rows to a one-sheet workbook at fileName with the same
// validation and column order as WriteCSV. Numbers and booleans keep their
// cell type; other values are written as text.
func WriteXLSX(fileName string, rows []Row, columns []string) (err error) {
	if err := ValidateRows(rows, columns); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: close workbook: %w", cerr)
		}
	}()

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	values := make([]any, len(columns))
	for r, row := range rows {
		for i, c := range columns {
			values[i] = cellValue(row[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("export: row %d: %w", r, err)
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("export: write row %d: %w", r, err)
		}
	}

	if err := f.SaveAs(fileName); err != nil {
		return fmt.Errorf("export: save %s: %w", fileName, err)
	}
	return nil
}

func cellValue(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, int, int32, int64, float32, float64:
		return v
	case json.Number:
		return numberValue(v.(json.Number))
	default:
		return formatValue(v)
	}
}

// numberValue keeps decoded JSON numbers numeric in the sheet. Integers
// outside int64 and unparsable text fall back to their literal form.
func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil && strings.ContainsAny(n.String(), ".eE") {
		return f
	}
	return n.String()
}
