package analysis

// ABC class thresholds on cumulative percentage.
const (
	classALimit = 80.0
	classBLimit = 95.0
)

// ParetoItem is one category of a Pareto analysis.
type ParetoItem struct {
	Label      string  `json:"etiqueta"`
	Frequency  int     `json:"frecuencia"`
	Percentage float64 `json:"porcentaje"`
	Cumulative float64 `json:"acumulado"`
	Class      string  `json:"clase"`
}

// Pareto is the frequency distribution of one column with ABC classes.
type Pareto struct {
	Column       string       `json:"columna_analizada"`
	TotalRecords int          `json:"total_registros"`
	Items        []ParetoItem `json:"items"`
}

// RunPareto counts the values of column, most frequent first, and classifies each by the
// cumulative share it completes: A up to 80%, B up to 95%, C beyond.
func RunPareto(t *Table, column string) (Pareto, error) {
	if !t.Has(column) {
		return Pareto{}, inputErrorf("La columna '%s' no existe en el archivo.", column)
	}
	counts := valueCounts(t.Strings(column))
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	out := Pareto{Column: column, TotalRecords: t.Len(), Items: make([]ParetoItem, 0, len(counts))}
	var cum float64
	for _, c := range counts {
		pct := float64(c.Count) / float64(total) * 100
		cum += pct
		out.Items = append(out.Items, ParetoItem{
			Label:      c.Value,
			Frequency:  c.Count,
			Percentage: pct,
			Cumulative: cum,
			Class:      abcClass(cum),
		})
	}
	return out, nil
}

func abcClass(cumulative float64) string {
	switch {
	case cumulative <= classALimit:
		return "A"
	case cumulative <= classBLimit:
		return "B"
	default:
		return "C"
	}
}
