package utils

import (
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ExcelWriter builds a single-sheet workbook row by row.
type ExcelWriter struct {
	filePath  string
	sheetName string
	file      *excelize.File
	nextRow   int
}

// NewExcelWriter starts a fresh workbook whose first row is headers.
func NewExcelWriter(filePath, sheetName string, headers []string) (*ExcelWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "error naming sheet")
	}

	w := &ExcelWriter{filePath: filePath, sheetName: sheetName, file: f, nextRow: 1}
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := w.AppendRow(row); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// AppendRow writes values into the next free row. Nil values leave the
// cell empty.
func (w *ExcelWriter) AppendRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.nextRow)
	if err != nil {
		return errors.Wrap(err, "error resolving cell")
	}
	if err := w.file.SetSheetRow(w.sheetName, cell, &values); err != nil {
		return errors.Wrapf(err, "error writing row %d", w.nextRow)
	}
	w.nextRow++
	return nil
}

func (w *ExcelWriter) Save() error {
	if err := w.file.SaveAs(w.filePath); err != nil {
		return errors.Wrap(err, "error saving Excel file")
	}
	return nil
}

func (w *ExcelWriter) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
