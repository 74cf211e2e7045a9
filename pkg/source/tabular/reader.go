// Package tabular reads per-year World Happiness Report exports (delimited
// text or xlsx workbooks) into processor records.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Table is a header row plus data rows, every row as wide as the header.
type Table struct {
	Header []string
	Rows   [][]string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SupportedExtensions lists the file extensions ReadFile understands.
var SupportedExtensions = []string{".csv", ".txt", ".tsv", ".xlsx"}

// IsSupported reports whether the file extension of name can be read.
func IsSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// DetectDelimiter picks the field separator from the first line.
func DetectDelimiter(firstLine string) rune {
	switch {
	case strings.Contains(firstLine, ";"):
		return ';'
	case strings.Contains(firstLine, "\t") && !strings.Contains(firstLine, ","):
		return '\t'
	default:
		return ','
	}
}

// decode strips a UTF-8 BOM and falls back to Latin-1 when the content is
// not valid UTF-8.
func decode(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return nil, errors.Wrap(err, "decode latin-1")
	}
	return out, nil
}

// ReadDelimited parses delimited text. Quotes are handled leniently and
// ragged rows are padded or truncated to the header width.
func ReadDelimited(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	data, err := decode(raw)
	if err != nil {
		return nil, err
	}

	firstLine, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = DetectDelimiter(string(firstLine))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse delimited text")
	}
	return toTable(records)
}

// ReadWorkbook reads the first sheet of an xlsx workbook. The first row is
// the header.
func ReadWorkbook(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open workbook %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", sheets[0])
	}
	return toTable(rows)
}

// ReadFile dispatches on the file extension.
func ReadFile(path string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadWorkbook(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadDelimited(f)
}

func toTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Header: header}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
