package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request is one tool invocation against a loaded table. X and Y keep the service's
// meaning: X are the feature columns, Y the target (or group, index or value column,
// depending on the tool).
type Request struct {
	Tool   string
	X      []string
	Y      string
	Params map[string]any
}

// InputError is a request the engine refuses before looking at the data, such as a
// missing column selection. The service reports these as HTTP 400 with a detail message.
type InputError struct{ Msg string }

func (e *InputError) Error() string { return e.Msg }

func inputErrorf(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// Result is a tool response in the service's JSON shape. Data problems are reported
// in-band as {"error": ...} plus discriminating fields, never as Go errors.
type Result map[string]any

func errorResult(msg string, kv ...any) Result {
	r := Result{"error": msg}
	for i := 0; i+1 < len(kv); i += 2 {
		r[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return r
}

type toolFunc func(t *Table, req Request) (Result, error)

// Engine runs analysis tools in-process.
type Engine struct {
	tools map[string]toolFunc
}

// NewEngine returns an engine with every locally supported tool registered.
func NewEngine() *Engine {
	e := &Engine{tools: map[string]toolFunc{}}
	e.tools["resumen"] = summary
	e.tools["frecuencias"] = frequencies
	e.tools["correlacion"] = correlation
	e.tools["ttest"] = tTest
	e.tools["anova"] = anova
	e.tools["regresion_lineal"] = linearRegression
	e.tools["regresion_logistica"] = logisticRegression
	e.tools["arbol_decision"] = unavailableClassifier("arbol_decision")
	e.tools["random_forest"] = unavailableClassifier("random_forest")
	e.tools["kmeans"] = kMeans
	e.tools["pca"] = principalComponents
	e.tools["nube_palabras"] = wordCloud
	e.tools["sentimiento"] = unavailable("sentimiento")
	e.tools["descomposicion_serie"] = seasonalDecomposition
	e.tools["pivot_table"] = pivotTable
	return e
}

// Supports reports whether the engine knows tool.
func (e *Engine) Supports(tool string) bool {
	_, ok := e.tools[tool]
	return ok
}

// Run executes req against t. The error is non-nil only for rejected input (*InputError);
// analytical failures come back as an error-shaped Result.
func (e *Engine) Run(t *Table, req Request) (Result, error) {
	fn, ok := e.tools[req.Tool]
	if !ok {
		return nil, inputErrorf("Herramienta '%s' no reconocida.", req.Tool)
	}
	for _, col := range append(append([]string(nil), req.X...), req.Y) {
		if col != "" && !t.Has(col) {
			return nil, inputErrorf("La columna '%s' no existe en el archivo.", col)
		}
	}
	res, err := fn(t, req)
	if err != nil {
		return nil, err
	}
	return sanitize(res).(Result), nil
}

// MarshalResult encodes a result as the service would send it.
func MarshalResult(r Result) (json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

func unavailable(tool string) toolFunc {
	return func(*Table, Request) (Result, error) {
		return errorResult(fmt.Sprintf("La herramienta '%s' no está disponible en el motor local; use el servicio remoto.", tool)), nil
	}
}

// unavailableClassifier still validates the target's class count, so the cardinality error
// surfaces locally exactly as the service reports it.
func unavailableClassifier(tool string) toolFunc {
	return func(t *Table, req Request) (Result, error) {
		if req.Y == "" || len(req.X) == 0 {
			return nil, inputErrorf("Se requiere una variable objetivo (Y) y al menos una variable (X).")
		}
		if !t.Kind(req.Y).Numeric() {
			if n := distinctCount(t.Strings(req.Y)); n > maxClasses {
				return tooManyClasses(req.Y, n), nil
			}
		}
		return unavailable(tool)(t, req)
	}
}

const maxClasses = 50

func tooManyClasses(target string, n int) Result {
	return errorResult("La variable objetivo tiene demasiadas clases para un modelo de clasificación estable.",
		"columna_target", target, "num_clases", n)
}

func distinctCount(cells []string) int {
	seen := map[string]struct{}{}
	for _, c := range cells {
		if c != "" {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}

// intParam reads a positive integer parameter, accepting the number types JSON decoding and
// flag parsing produce.
func intParam(params map[string]any, name string, def int) int {
	v, ok := params[name]
	if !ok {
		return def
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return def
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return def
		}
		n = i
	default:
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func stringParam(params map[string]any, name, def string) string {
	if s, ok := params[name].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

// sanitize replaces NaN and Inf, which JSON cannot carry, with null.
func sanitize(v any) any {
	switch x := v.(type) {
	case Result:
		out := make(Result, len(x))
		for k, e := range x {
			out[k] = sanitize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = sanitize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = sanitize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = sanitize(e)
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = sanitize(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = sanitize(e)
		}
		return out
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	}
	return v
}

// pairedFloats returns the rows where every named column parses as a number.
func pairedFloats(t *Table, cols ...string) [][]float64 {
	vals := make([][]float64, len(cols))
	oks := make([][]bool, len(cols))
	for i, c := range cols {
		vals[i], oks[i] = t.Floats(c)
	}
	var rows [][]float64
	for r := 0; r < t.Len(); r++ {
		row := make([]float64, len(cols))
		complete := true
		for i := range cols {
			if !oks[i][r] {
				complete = false
				break
			}
			row[i] = vals[i][r]
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return rows
}

func column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[j]
	}
	return out
}
