// Package request turns user selections into analysis-service payloads, rejecting anything
// detectable on the client before a network call is made.
package request

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
)

// Selections are the user's column and parameter choices for one run.
type Selections struct {
	// Features are the X columns, in selection order. Grouping tools read the value column
	// from Features[0].
	Features []string
	// Target is the Y column; grouping tools read the group column from it.
	Target string
	Params map[string]any
}

var (
	// ErrMissingSelection matches every MissingSelectionError.
	ErrMissingSelection = errors.New("missing selection")
	// ErrNoFile is returned when no dataset has been uploaded.
	ErrNoFile = errors.New("no dataset loaded; upload a file first")
)

// MissingSelectionError reports a required role left unbound.
type MissingSelectionError struct {
	Tool string
	Role tools.Role
	Min  int
}

func (e *MissingSelectionError) Error() string {
	switch {
	case e.Tool == "":
		return fmt.Sprintf("a %s column must be selected", e.Role)
	case e.Min > 1:
		return fmt.Sprintf("tool %q requires at least %d %s columns", e.Tool, e.Min, e.Role)
	default:
		return fmt.Sprintf("tool %q requires a %s selection", e.Tool, e.Role)
	}
}

func (e *MissingSelectionError) Is(target error) bool { return target == ErrMissingSelection }

// SelectionConflictError reports a grouping tool whose group and value columns coincide.
type SelectionConflictError struct {
	Tool   string
	Column string
}

func (e *SelectionConflictError) Error() string {
	return fmt.Sprintf("tool %q: group column and value column must differ (both are %q)", e.Tool, e.Column)
}

// UnknownColumnError reports a selected column that the loaded dataset does not have.
type UnknownColumnError struct {
	Column   string
	Filename string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("column %q not found in %s", e.Column, e.Filename)
}

// InvalidParameterError reports a parameter value of the wrong kind.
type InvalidParameterError struct {
	Tool  string
	Name  string
	Value any
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("tool %q: parameter %s must be a positive integer, got %v", e.Tool, e.Name, e.Value)
}

// Builder builds requests according to a tool registry.
type Builder struct {
	registry *tools.Registry
}

// NewBuilder returns a Builder that consults reg for every tool's role contract.
func NewBuilder(reg *tools.Registry) *Builder {
	return &Builder{registry: reg}
}

// Build validates sel against the tool's descriptor and the loaded dataset and returns the
// normalized request. Roles the tool does not consume are dropped; declared parameters the user
// left unset get their default.
func (b *Builder) Build(meta service.FileMetadata, toolID string, sel Selections) (service.AnalysisRequest, error) {
	if meta.Filename == "" {
		return service.AnalysisRequest{}, ErrNoFile
	}
	d, err := b.registry.Lookup(toolID)
	if err != nil {
		return service.AnalysisRequest{}, err
	}
	features := nonEmpty(sel.Features)
	target := strings.TrimSpace(sel.Target)

	req := service.AnalysisRequest{
		Filename:       meta.Filename,
		ToolID:         d.ID,
		FeatureColumns: []string{},
		Parameters:     map[string]any{},
	}

	switch {
	case d.Requires(tools.RoleGrouping):
		if target == "" {
			return service.AnalysisRequest{}, &MissingSelectionError{Tool: d.ID, Role: tools.RoleGrouping}
		}
		if len(features) == 0 {
			return service.AnalysisRequest{}, &MissingSelectionError{Tool: d.ID, Role: tools.RoleFeatures}
		}
		if features[0] == target {
			return service.AnalysisRequest{}, &SelectionConflictError{Tool: d.ID, Column: target}
		}
		req.FeatureColumns = features
		req.TargetColumn = &target
	default:
		if d.Requires(tools.RoleTarget) {
			if target == "" {
				return service.AnalysisRequest{}, &MissingSelectionError{Tool: d.ID, Role: tools.RoleTarget}
			}
			req.TargetColumn = &target
		}
		if d.Requires(tools.RoleFeatures) {
			if len(features) < d.MinFeatures {
				return service.AnalysisRequest{}, &MissingSelectionError{Tool: d.ID, Role: tools.RoleFeatures, Min: d.MinFeatures}
			}
			req.FeatureColumns = features
		}
	}

	for _, col := range req.FeatureColumns {
		if err := checkColumn(meta, col); err != nil {
			return service.AnalysisRequest{}, err
		}
	}
	if req.TargetColumn != nil {
		if err := checkColumn(meta, *req.TargetColumn); err != nil {
			return service.AnalysisRequest{}, err
		}
	}

	if d.Requires(tools.RoleParams) {
		for k, v := range sel.Params {
			req.Parameters[k] = v
		}
		for _, p := range d.Params {
			v, ok := req.Parameters[p.Name]
			if !ok {
				req.Parameters[p.Name] = p.Default
				continue
			}
			if _, wantInt := p.Default.(int); wantInt {
				n, ok := positiveInt(v)
				if !ok {
					return service.AnalysisRequest{}, &InvalidParameterError{Tool: d.ID, Name: p.Name, Value: v}
				}
				req.Parameters[p.Name] = n
			}
		}
	}
	return req, nil
}

// BuildPareto builds the drill-down request. It does not consult the registry: the drill-down
// always runs on the originally uploaded file.
func BuildPareto(meta service.FileMetadata, column string) (service.ParetoRequest, error) {
	if meta.Filename == "" {
		return service.ParetoRequest{}, ErrNoFile
	}
	column = strings.TrimSpace(column)
	if column == "" {
		return service.ParetoRequest{}, &MissingSelectionError{Role: tools.RoleGrouping}
	}
	if err := checkColumn(meta, column); err != nil {
		return service.ParetoRequest{}, err
	}
	return service.ParetoRequest{Filename: meta.Filename, Column: column}, nil
}

// ParseParams parses key=value pairs. Integral values become int, other numbers float64, and
// everything else stays a string.
func ParseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q (use name=value)", p)
		}
		v = strings.TrimSpace(v)
		if i, err := strconv.Atoi(v); err == nil {
			out[k] = i
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func checkColumn(meta service.FileMetadata, col string) error {
	// Metadata without a column list cannot be checked; the service validates instead.
	if len(meta.Columns) == 0 || meta.HasColumn(col) {
		return nil
	}
	return &UnknownColumnError{Column: col, Filename: meta.Filename}
}

func nonEmpty(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func positiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case int64:
		return int(n), n > 0
	case float64:
		if n > 0 && n == math.Trunc(n) {
			return int(n), true
		}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil && i > 0
	}
	return 0, false
}
