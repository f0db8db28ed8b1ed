// Package xlsx reads station workbooks exported one sheet per day. The sheet
// name carries the calendar date, the first row of each sheet holds column
// names, and every following row is one observation.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ReadFile reads every sheet of the workbook at path.
func ReadFile(path, source string) ([]domain.RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return readWorkbook(f, path, source)
}

// Read reads every sheet of a workbook streamed from r. name identifies the
// workbook in record references.
func Read(r io.Reader, name, source string) ([]domain.RawRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer f.Close()
	return readWorkbook(f, name, source)
}

func readWorkbook(f *excelize.File, name, source string) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	for _, sheet := range f.GetSheetList() {
		recs, err := readSheet(f, name, sheet, source)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readSheet(f *excelize.File, name, sheet, source string) ([]domain.RawRecord, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read header of sheet %q: %w", sheet, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []domain.RawRecord
	rowNum := 1
	for rows.Next() {
		rowNum++
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d of sheet %q: %w", rowNum, sheet, err)
		}
		data := rowData(header, cols)
		if len(data) == 0 {
			continue
		}
		out = append(out, domain.RawRecord{
			Ref:     fmt.Sprintf("%s#%s:%d", name, sheet, rowNum),
			Source:  source,
			Context: sheet,
			Data:    data,
		})
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return out, nil
}

// rowData pairs cells with column names. Blank cells are left out so the
// mapper sees them as missing.
func rowData(header, cols []string) map[string]any {
	data := make(map[string]any, len(header))
	for i, col := range header {
		if col == "" || i >= len(cols) {
			continue
		}
		if v := strings.TrimSpace(cols[i]); v != "" {
			data[col] = v
		}
	}
	return data
}
