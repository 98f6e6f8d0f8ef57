package service

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strconv"
)

// Service is the remote analysis service as seen by the workflow controller.
type Service interface {
	Upload(ctx context.Context, filename string, r io.Reader) (FileMetadata, error)
	RunAnalysis(ctx context.Context, req AnalysisRequest) (json.RawMessage, error)
	RunPareto(ctx context.Context, req ParetoRequest) (ParetoResult, error)
}

// FileMetadata describes an uploaded dataset.
type FileMetadata struct {
	Filename string   `json:"filename"`
	RowCount int      `json:"rows"`
	Columns  []string `json:"columns"`
	// Preview maps column name -> row index -> cell value.
	Preview map[string]map[string]any `json:"preview"`
}

// UnmarshalJSON also accepts "rowCount" for the row count.
func (m *FileMetadata) UnmarshalJSON(b []byte) error {
	type plain FileMetadata
	var aux struct {
		plain
		AltRowCount *int `json:"rowCount"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = FileMetadata(aux.plain)
	if m.RowCount == 0 && aux.AltRowCount != nil {
		m.RowCount = *aux.AltRowCount
	}
	return nil
}

// HasColumn reports whether name is one of the dataset's columns.
func (m FileMetadata) HasColumn(name string) bool {
	for _, c := range m.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// PreviewRows returns the preview as rows in column order, sorted by numeric row index.
func (m FileMetadata) PreviewRows() [][]any {
	if len(m.Columns) == 0 || len(m.Preview) == 0 {
		return nil
	}
	idxSet := map[string]struct{}{}
	for _, col := range m.Columns {
		for idx := range m.Preview[col] {
			idxSet[idx] = struct{}{}
		}
	}
	idxs := make([]string, 0, len(idxSet))
	for idx := range idxSet {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool {
		a, errA := strconv.Atoi(idxs[i])
		b, errB := strconv.Atoi(idxs[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return idxs[i] < idxs[j]
	})
	rows := make([][]any, 0, len(idxs))
	for _, idx := range idxs {
		row := make([]any, len(m.Columns))
		for i, col := range m.Columns {
			row[i] = m.Preview[col][idx]
		}
		rows = append(rows, row)
	}
	return rows
}

// AnalysisRequest is the normalized payload of one analysis invocation.
type AnalysisRequest struct {
	Filename       string
	ToolID         string
	FeatureColumns []string
	// TargetColumn is nil when the tool does not use a target.
	TargetColumn *string
	Parameters   map[string]any
}

type analysisRequestWire struct {
	Filename   string         `json:"filename"`
	Tool       string         `json:"tipo_analisis"`
	Features   []string       `json:"columnas_x"`
	Target     string         `json:"columna_y"`
	Parameters map[string]any `json:"parametros"`
}

// MarshalJSON renders the request with the service's field names. An absent target is sent
// as an empty string.
func (r AnalysisRequest) MarshalJSON() ([]byte, error) {
	w := analysisRequestWire{
		Filename:   r.Filename,
		Tool:       r.ToolID,
		Features:   r.FeatureColumns,
		Parameters: r.Parameters,
	}
	if w.Features == nil {
		w.Features = []string{}
	}
	if w.Parameters == nil {
		w.Parameters = map[string]any{}
	}
	if r.TargetColumn != nil {
		w.Target = *r.TargetColumn
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON; an empty target decodes as absent.
func (r *AnalysisRequest) UnmarshalJSON(b []byte) error {
	var w analysisRequestWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = AnalysisRequest{
		Filename:       w.Filename,
		ToolID:         w.Tool,
		FeatureColumns: w.Features,
		Parameters:     w.Parameters,
	}
	if r.FeatureColumns == nil {
		r.FeatureColumns = []string{}
	}
	if r.Parameters == nil {
		r.Parameters = map[string]any{}
	}
	if w.Target != "" {
		t := w.Target
		r.TargetColumn = &t
	}
	return nil
}

// Target returns the target column or "" when absent.
func (r AnalysisRequest) Target() string {
	if r.TargetColumn == nil {
		return ""
	}
	return *r.TargetColumn
}

// ParetoRequest asks for the frequency distribution of one categorical column of the
// originally uploaded file.
type ParetoRequest struct {
	Filename string `json:"filename"`
	Column   string `json:"columna"`
}

// ParetoClass is the ABC class assigned by the service.
type ParetoClass string

const (
	ClassA ParetoClass = "A"
	ClassB ParetoClass = "B"
	ClassC ParetoClass = "C"
)

// ParetoItem is one category of a Pareto drill-down.
type ParetoItem struct {
	Label                string      `json:"etiqueta"`
	Frequency            int         `json:"frecuencia"`
	Percentage           float64     `json:"porcentaje"`
	CumulativePercentage float64     `json:"acumulado"`
	Class                ParetoClass `json:"clase"`
}

// ParetoResult is the drill-down response, items ordered by descending frequency.
type ParetoResult struct {
	AnalyzedColumn string       `json:"columna_analizada"`
	TotalRecords   int          `json:"total_registros"`
	Items          []ParetoItem `json:"items"`
}
