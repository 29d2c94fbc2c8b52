// Package export writes row collections to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrSchemaMismatch is returned (wrapped) when columns and row keys disagree.
var ErrSchemaMismatch = errors.New("export: schema mismatch")

// Row is one record. Its keys must be exactly the export columns.
type Row map[string]any

// ValidateRows checks that columns is non-empty and unique, and that every
// row carries exactly the column keys.
func ValidateRows(rows []Row, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrSchemaMismatch)
	}
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := set[c]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrSchemaMismatch, c)
		}
		set[c] = struct{}{}
	}

	for i, row := range rows {
		var missing, extra []string
		for _, c := range columns {
			if _, ok := row[c]; !ok {
				missing = append(missing, c)
			}
		}
		for k := range row {
			if _, ok := set[k]; !ok {
				extra = append(extra, k)
			}
		}
		if len(missing) > 0 || len(extra) > 0 {
			sort.Strings(extra)
			return fmt.Errorf("%w: row %d: missing [%s] extra [%s]",
				ErrSchemaMismatch, i, strings.Join(missing, ","), strings.Join(extra, ","))
		}
	}
	return nil
}

// WriteCSV validates rows, then truncates fileName and writes a header row
// followed by one record per row, in input order. Nothing is written when
// validation fails. The file is closed on every path.
func WriteCSV(fileName string, rows []Row, columns []string) (err error) {
	if err := ValidateRows(rows, columns); err != nil {
		return err
	}

	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", fileName, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: close %s: %w", fileName, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			record[i] = formatValue(row[c])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("export: write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush %s: %w", fileName, err)
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
