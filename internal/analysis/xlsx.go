package analysis

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads the selected sheet of a workbook; the first row is the header.
func LoadXLSX(path string, opt Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	return readWorkbook(filepath.Base(path), f, opt)
}

// ReadXLSX reads a workbook from r.
func ReadXLSX(name string, r io.Reader, opt Options) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	return readWorkbook(name, f, opt)
}

func readWorkbook(name string, f *excelize.File, opt Options) (*Table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{Name: name, opt: opt}, nil
	}
	sheet := sheets[0]
	if opt.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, opt.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
				opt.Sheet, name, strings.Join(sheets, ", "))
		}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return &Table{Name: name, opt: opt}, nil
	}
	t := &Table{Name: name, Columns: cleanHeader(rows[0]), opt: opt}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	for _, rec := range rows[1:] {
		if len(t.Rows) >= maxRows {
			break
		}
		if blankRow(rec) {
			continue
		}
		t.Rows = append(t.Rows, normalizeRow(rec, len(t.Columns)))
	}
	return t, nil
}

func blankRow(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
