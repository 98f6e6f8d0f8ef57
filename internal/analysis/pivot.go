package analysis

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

const maxPivotCategories = 100

var aggregators = map[string]func(stats.Float64Data) float64{
	"sum":    func(d stats.Float64Data) float64 { v, _ := stats.Sum(d); return v },
	"mean":   func(d stats.Float64Data) float64 { v, _ := stats.Mean(d); return v },
	"median": func(d stats.Float64Data) float64 { v, _ := stats.Median(d); return v },
	"min":    func(d stats.Float64Data) float64 { v, _ := stats.Min(d); return v },
	"max":    func(d stats.Float64Data) float64 { v, _ := stats.Max(d); return v },
	"count":  func(d stats.Float64Data) float64 { return float64(len(d)) },
}

// pivotTable is the "pivot_table" tool: Y is the index, X[0] the columns and X[1] the values,
// aggregated with the "aggfunc" parameter. Empty cells are 0.
func pivotTable(t *Table, req Request) (Result, error) {
	if len(req.X) < 2 {
		return nil, inputErrorf("Para Pivot Table se requieren 2 columnas en X: [Columnas, Valores]")
	}
	if req.Y == "" {
		return nil, inputErrorf("Seleccione la columna índice (Y).")
	}
	index, columns, values := req.Y, req.X[0], req.X[1]
	agg, ok := aggregators[stringParam(req.Params, "aggfunc", "sum")]
	if !ok {
		return nil, inputErrorf("Función de agregación no soportada: %s", stringParam(req.Params, "aggfunc", "sum"))
	}

	for _, col := range []string{index, columns} {
		if k := t.Kind(col); k != KindText {
			return incompatible("La columna utilizada como categoría no es de tipo categórico (texto).", col, k), nil
		}
		if n := distinctCount(t.Strings(col)); n > maxPivotCategories {
			return errorResult("La columna tiene demasiadas categorías distintas para usarla como dimensión de tabla dinámica (posible ID o identificador único).",
				"columna", col, "num_categorias", n), nil
		}
	}
	if k := t.Kind(values); !k.Numeric() {
		return incompatible("La columna de valores debe ser numérica para poder agregarse.", values, k), nil
	}

	rowKeys := t.Strings(index)
	colKeys := t.Strings(columns)
	vals, okVals := t.Floats(values)
	type cell struct{ r, c string }
	groups := map[cell]stats.Float64Data{}
	rowSet, colSet := map[string]bool{}, map[string]bool{}
	for i := range rowKeys {
		if rowKeys[i] == "" || colKeys[i] == "" || !okVals[i] {
			continue
		}
		k := cell{rowKeys[i], colKeys[i]}
		groups[k] = append(groups[k], vals[i])
		rowSet[rowKeys[i]] = true
		colSet[colKeys[i]] = true
	}
	ejeY := sortedKeys(rowSet)
	ejeX := sortedKeys(colSet)
	data := make([]map[string]any, 0, len(ejeX)*len(ejeY))
	for _, r := range ejeY {
		for _, c := range ejeX {
			v := 0.0
			if g, ok := groups[cell{r, c}]; ok {
				v = agg(g)
				if math.IsNaN(v) {
					v = 0
				}
			}
			data = append(data, map[string]any{"x": c, "y": r, "value": v})
		}
	}
	return Result{"eje_x": ejeX, "eje_y": ejeY, "datos": data}, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
