package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var errEmptyFile = errors.New("archivo vacío")

// DecodeCSV turns a single-stream CSV payload into rows. The first record is
// the header and defines the column set for the whole file; it occupies line
// 1, so the first data row reports line 2.
func DecodeCSV(data []byte) ([]Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New("archivo no válido o corrupto")
	}
	// Excel-exported CSVs prepend a UTF-8 BOM to the first header cell.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New("archivo no válido o corrupto")
		}
		line++
		values := make(map[string]string, len(header))
		empty := true
		for i, h := range header {
			if h == "" {
				continue
			}
			var v string
			if i < len(record) {
				v = strings.TrimSpace(record[i])
			}
			values[h] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, Row{Line: line, Values: values})
	}
	return rows, nil
}

// DecodeXLSX decodes every sheet of a spreadsheet independently; each sheet
// maps to one department/area scope. Sheets with fewer than two rows
// (header-only or empty) are skipped without error.
func DecodeXLSX(data []byte) ([]Row, error) {
	if len(data) == 0 {
		return nil, errEmptyFile
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New("archivo no válido o corrupto")
	}
	defer f.Close()

	var rows []Row
	for _, sheet := range f.GetSheetList() {
		sheetRows, err := f.GetRows(sheet)
		if err != nil {
			return nil, errors.New("archivo no válido o corrupto")
		}
		if len(sheetRows) < 2 {
			continue
		}
		header := sheetRows[0]
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		for i, cells := range sheetRows[1:] {
			values := make(map[string]string, len(header))
			empty := true
			for j, h := range header {
				if h == "" {
					continue
				}
				var v string
				if j < len(cells) {
					v = strings.TrimSpace(cells[j])
				}
				values[h] = v
				if v != "" {
					empty = false
				}
			}
			if empty {
				continue
			}
			rows = append(rows, Row{Sheet: sheet, Line: i + 2, Values: values})
		}
	}
	return rows, nil
}
