// Package analysis is the local analysis engine: it loads CSV/XLSX datasets and runs the
// analysis tools in-process, answering with the same JSON shapes as the analysis service.
package analysis

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("formato no soportado")

// Options controls how tabular files are read.
type Options struct {
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, auto-detects among ',', ';', '\t', '|'.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune // optional; if 0, auto-detect common separators (',' '.' space)
	// Sheet selects the XLSX sheet by name; empty means the first sheet.
	Sheet string
}

// DefaultOptions returns reasonable defaults for dataset loading.
func DefaultOptions() Options {
	return Options{MaxRows: 100000}
}

// Table is a loaded dataset: a header and string cells, parsed lazily per column.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
	opt     Options
}

// Kind is the inferred type of a column.
type Kind int

const (
	KindEmpty Kind = iota
	KindInteger
	KindFloat
	KindDatetime
	KindText
)

// DType names the kind the way the analysis service reports column types.
func (k Kind) DType() string {
	switch k {
	case KindInteger:
		return "int64"
	case KindFloat:
		return "float64"
	case KindDatetime:
		return "datetime64[ns]"
	default:
		return "object"
	}
}

// Numeric reports whether the kind holds numbers.
func (k Kind) Numeric() bool { return k == KindInteger || k == KindFloat }

// Load reads a dataset, choosing the reader by file extension.
func Load(path string, opt Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		defer f.Close()
		return ReadCSV(filepath.Base(path), f, opt)
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, opt)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// ReadCSV reads a delimited dataset from r. The delimiter is sniffed from the first 4KB
// unless opt.Delimiter is set.
func ReadCSV(name string, r io.Reader, opt Options) (*Table, error) {
	br := bufio.NewReaderSize(r, 4096)
	delim := opt.Delimiter
	if delim == 0 {
		sample, _ := br.Peek(4096)
		delim = sniffDelimiter(name, sample)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Name: name, opt: opt}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Name: name, Columns: cleanHeader(header), opt: opt}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	for len(t.Rows) < maxRows {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+2, err)
		}
		t.Rows = append(t.Rows, normalizeRow(rec, len(t.Columns)))
	}
	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of col or -1.
func (t *Table) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Has reports whether the table has column col.
func (t *Table) Has(col string) bool { return t.Index(col) >= 0 }

// Strings returns the trimmed cells of col; missing cells are "".
func (t *Table) Strings(col string) []string {
	i := t.Index(col)
	out := make([]string, len(t.Rows))
	if i < 0 {
		return out
	}
	for r, row := range t.Rows {
		if v := strings.TrimSpace(row[i]); !isMissing(v) {
			out[r] = v
		}
	}
	return out
}

// Floats returns the numeric value of every cell in col and whether it parsed.
func (t *Table) Floats(col string) ([]float64, []bool) {
	cells := t.Strings(col)
	vals := make([]float64, len(cells))
	ok := make([]bool, len(cells))
	for r, c := range cells {
		if c == "" {
			continue
		}
		vals[r], ok[r] = parseNumeric(c, t.opt)
	}
	return vals, ok
}

// Kind infers the type of col from its non-missing cells.
func (t *Table) Kind(col string) Kind {
	cells := t.Strings(col)
	seen, numeric, integral, dates := 0, 0, 0, 0
	for _, c := range cells {
		if c == "" {
			continue
		}
		seen++
		if f, ok := parseNumeric(c, t.opt); ok {
			numeric++
			if f == math.Trunc(f) && !strings.ContainsAny(c, ".,eE") {
				integral++
			}
			continue
		}
		if _, ok := parseTimeMaybe(c); ok {
			dates++
		}
	}
	switch {
	case seen == 0:
		return KindEmpty
	case numeric == seen && integral == seen:
		return KindInteger
	case numeric == seen:
		return KindFloat
	case dates == seen:
		return KindDatetime
	default:
		return KindText
	}
}

// Preview returns the first n rows as column -> row index -> cell, the shape the service
// uses. Numeric columns carry numbers; missing cells are "null".
func (t *Table) Preview(n int) map[string]map[string]any {
	if n <= 0 {
		n = 5
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make(map[string]map[string]any, len(t.Columns))
	for _, col := range t.Columns {
		kind := t.Kind(col)
		cells := t.Strings(col)
		m := make(map[string]any, n)
		for r := 0; r < n; r++ {
			key := strconv.Itoa(r)
			c := cells[r]
			switch {
			case c == "":
				m[key] = "null"
			case kind == KindInteger:
				f, _ := parseNumeric(c, t.opt)
				m[key] = int64(f)
			case kind == KindFloat:
				f, _ := parseNumeric(c, t.opt)
				m[key] = f
			default:
				m[key] = c
			}
		}
		out[col] = m
	}
	return out
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

func normalizeRow(rec []string, ncol int) []string {
	row := make([]string, ncol)
	copy(row, rec)
	return row
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none", "-":
		return true
	}
	return false
}

// sniffDelimiter picks the candidate that splits the sample's lines most consistently.
func sniffDelimiter(name string, sample []byte) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	lines := bytes.Split(sample, []byte("\n"))
	if len(lines) > 1 {
		// The last line of a sample may be cut short.
		lines = lines[:len(lines)-1]
	}
	best, bestScore := ',', 0
	for _, cand := range []rune{',', ';', '\t', '|'} {
		first := -1
		score := 0
		for _, ln := range lines {
			if len(bytes.TrimSpace(ln)) == 0 {
				continue
			}
			n := bytes.Count(ln, []byte(string(cand)))
			if first < 0 {
				first = n
			}
			if n == 0 || n != first {
				break
			}
			score++
		}
		if first > 0 && score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006", "2006-01",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05", "2/1/2006",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.TrimSuffix(raw, "%")
	// Normalize spaces
	raw = strings.ReplaceAll(raw, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		if cpos >= 0 && dpos >= 0 {
			if cpos > dpos {
				dec = ','
				thou = '.'
			} else {
				dec = '.'
				thou = ','
			}
		} else if cpos >= 0 {
			dec = ','
		} else {
			dec = '.'
		}
	}
	// Remove thousands separators (common: ',', '.', space) if they differ from decimal
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
