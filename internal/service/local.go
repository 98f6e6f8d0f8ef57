package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KaramelBytes/analytica-cli/internal/analysis"
	"github.com/KaramelBytes/analytica-cli/internal/utils"
)

// DefaultPreviewRows is how many rows upload metadata previews.
const DefaultPreviewRows = 5

const (
	msgFileNotFound   = "Archivo no encontrado. Sube el archivo primero."
	msgFormatNotValid = "Formato no soportado"
)

// LocalOptions configures the in-process engine.
type LocalOptions struct {
	// DataDir is where uploads are stored; a directory under the system temp dir when empty.
	DataDir     string
	PreviewRows int
	MaxRows     int
	Sheet       string
	Logger      *slog.Logger
}

// Local implements Service in-process with the analysis engine. Failures are reported in the
// same shapes the HTTP service produces, so callers classify both the same way.
type Local struct {
	dataDir     string
	previewRows int
	opt         analysis.Options
	engine      *analysis.Engine
	logger      *slog.Logger

	mu     sync.Mutex
	tables map[string]*analysis.Table
}

// NewLocal prepares the data directory and returns a ready engine.
func NewLocal(o LocalOptions) (*Local, error) {
	dir := o.DataDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "analytica-data")
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	opt := analysis.DefaultOptions()
	if o.MaxRows > 0 {
		opt.MaxRows = o.MaxRows
	}
	opt.Sheet = o.Sheet
	preview := o.PreviewRows
	if preview <= 0 {
		preview = DefaultPreviewRows
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		dataDir:     dir,
		previewRows: preview,
		opt:         opt,
		engine:      analysis.NewEngine(),
		logger:      logger,
		tables:      map[string]*analysis.Table{},
	}, nil
}

// DataDir returns where uploaded files are stored.
func (l *Local) DataDir() string { return l.dataDir }

// Upload stores the file under the data directory and parses it.
func (l *Local) Upload(ctx context.Context, filename string, r io.Reader) (FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return FileMetadata{}, err
	}
	name := filepath.Base(filename)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt", ".xlsx", ".xlsm":
	default:
		return FileMetadata{}, badRequest(http.StatusBadRequest, msgFormatNotValid)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("read %s: %w", filename, err)
	}
	path := filepath.Join(l.dataDir, name)
	if err := utils.SafeWriteFile(path, data); err != nil {
		return FileMetadata{}, fmt.Errorf("store %s: %w", name, err)
	}
	l.forget(name)
	t, err := l.table(name)
	if err != nil {
		return FileMetadata{}, err
	}
	l.logger.Debug("local upload", "file", name, "rows", t.Len(), "columns", len(t.Columns))
	return FileMetadata{
		Filename: name,
		RowCount: t.Len(),
		Columns:  append([]string{}, t.Columns...),
		Preview:  t.Preview(l.previewRows),
	}, nil
}

// RunAnalysis runs the tool and returns its JSON result. Rejected input comes back as
// {"error": ...}, matching how the HTTP client reshapes a 4xx detail.
func (l *Local) RunAnalysis(ctx context.Context, req AnalysisRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := l.table(req.Filename)
	if err != nil {
		var bre *BadRequestError
		if errors.As(err, &bre) {
			return errorBody(bre.Message)
		}
		return nil, err
	}
	res, err := l.engine.Run(t, analysis.Request{
		Tool:   req.ToolID,
		X:      req.FeatureColumns,
		Y:      req.Target(),
		Params: req.Parameters,
	})
	if err != nil {
		var ie *analysis.InputError
		if errors.As(err, &ie) {
			return errorBody(ie.Msg)
		}
		return nil, err
	}
	l.logger.Debug("local analysis", "tool", req.ToolID, "file", req.Filename)
	return analysis.MarshalResult(res)
}

// RunPareto computes the ABC distribution of one column.
func (l *Local) RunPareto(ctx context.Context, req ParetoRequest) (ParetoResult, error) {
	if err := ctx.Err(); err != nil {
		return ParetoResult{}, err
	}
	t, err := l.table(req.Filename)
	if err != nil {
		return ParetoResult{}, err
	}
	p, err := analysis.RunPareto(t, req.Column)
	if err != nil {
		var ie *analysis.InputError
		if errors.As(err, &ie) {
			return ParetoResult{}, badRequest(http.StatusBadRequest, ie.Msg)
		}
		return ParetoResult{}, err
	}
	out := ParetoResult{
		AnalyzedColumn: p.Column,
		TotalRecords:   p.TotalRecords,
		Items:          make([]ParetoItem, len(p.Items)),
	}
	for i, it := range p.Items {
		out.Items[i] = ParetoItem{
			Label:                it.Label,
			Frequency:            it.Frequency,
			Percentage:           it.Percentage,
			CumulativePercentage: it.Cumulative,
			Class:                ParetoClass(it.Class),
		}
	}
	return out, nil
}

// table returns the parsed file, loading it on first use.
func (l *Local) table(filename string) (*analysis.Table, error) {
	name := filepath.Base(filename)
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.tables[name]; ok {
		return t, nil
	}
	path := filepath.Join(l.dataDir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, badRequest(http.StatusNotFound, msgFileNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	t, err := analysis.Load(path, l.opt)
	if err != nil {
		if errors.Is(err, analysis.ErrUnsupportedFormat) {
			return nil, badRequest(http.StatusBadRequest, msgFormatNotValid)
		}
		return nil, badRequest(http.StatusBadRequest, fmt.Sprintf("No se pudo leer el archivo: %v", err))
	}
	l.tables[name] = t
	return t, nil
}

func (l *Local) forget(name string) {
	l.mu.Lock()
	delete(l.tables, name)
	l.mu.Unlock()
}

func badRequest(status int, msg string) *BadRequestError {
	return &BadRequestError{APIError: &APIError{
		StatusCode: status,
		Message:    msg,
		Raw:        map[string]any{"detail": msg},
	}}
}

func errorBody(msg string) (json.RawMessage, error) {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return nil, fmt.Errorf("encode error: %w", err)
	}
	return b, nil
}
