package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// summary is the "resumen" tool: describe() style statistics per numeric column plus
// variance, mode, skewness and kurtosis.
func summary(t *Table, req Request) (Result, error) {
	if len(req.X) == 0 {
		return nil, inputErrorf("Seleccione al menos una variable numérica.")
	}
	out := Result{}
	for _, col := range req.X {
		if !t.Kind(col).Numeric() {
			continue
		}
		data := presentFloats(t, col)
		if len(data) == 0 {
			continue
		}
		out[col] = describe(data)
	}
	if len(out) == 0 {
		return errorResult("Las columnas seleccionadas no son numéricas."), nil
	}
	return out, nil
}

func describe(data stats.Float64Data) map[string]any {
	mean, _ := stats.Mean(data)
	std, _ := stats.StandardDeviationSample(data)
	minV, _ := stats.Min(data)
	maxV, _ := stats.Max(data)
	q25, _ := quartile(data, 0.25)
	q50, _ := stats.Median(data)
	q75, _ := quartile(data, 0.75)
	variance, _ := stats.SampleVariance(data)
	var mode any
	if modes, err := stats.Mode(data); err == nil && len(modes) > 0 {
		mode = modes[0]
	} else if len(data) > 0 {
		// Every value is unique; the smallest is the first mode.
		mode = minV
	}
	m := map[string]any{
		"count":     float64(len(data)),
		"mean":      mean,
		"std":       std,
		"min":       minV,
		"25%":       q25,
		"50%":       q50,
		"75%":       q75,
		"max":       maxV,
		"varianza":  variance,
		"moda":      mode,
		"asimetria": math.NaN(),
		"curtosis":  math.NaN(),
	}
	if len(data) > 2 && std > 0 {
		m["asimetria"] = skewness(data, mean)
	}
	if len(data) > 3 && std > 0 {
		m["curtosis"] = excessKurtosis(data, mean)
	}
	return m
}

// quartile uses linear interpolation between closest ranks.
func quartile(data []float64, q float64) (float64, error) {
	if len(data) == 0 {
		return math.NaN(), stats.ErrEmptyInput
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo], nil
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w, nil
}

// skewness is the bias-corrected sample skewness.
func skewness(data []float64, mean float64) float64 {
	n := float64(len(data))
	var m2, m3 float64
	for _, x := range data {
		d := x - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	g1 := m3 / math.Pow(m2, 1.5)
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// excessKurtosis is the bias-corrected sample excess kurtosis.
func excessKurtosis(data []float64, mean float64) float64 {
	n := float64(len(data))
	var m2, m4 float64
	for _, x := range data {
		d := x - mean
		m2 += d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m4 /= n
	g2 := m4/(m2*m2) - 3
	return ((n+1)*g2 + 6) * (n - 1) / ((n - 2) * (n - 3))
}

const histogramBins = 10

// frequencies is the "frecuencias" tool: a histogram for numeric columns, the top 20 values
// otherwise.
func frequencies(t *Table, req Request) (Result, error) {
	if len(req.X) == 0 {
		return nil, inputErrorf("Seleccione una variable.")
	}
	col := req.X[0]
	if t.Kind(col).Numeric() {
		data := presentFloats(t, col)
		labels, counts := histogram(data, histogramBins)
		return Result{"tipo": "numerico", "etiquetas": labels, "valores": counts}, nil
	}
	counts := valueCounts(t.Strings(col))
	if len(counts) > 20 {
		counts = counts[:20]
	}
	labels := make([]string, len(counts))
	values := make([]int, len(counts))
	for i, c := range counts {
		labels[i], values[i] = c.Value, c.Count
	}
	return Result{"tipo": "categorico", "etiquetas": labels, "valores": values}, nil
}

func histogram(data []float64, bins int) ([]string, []int) {
	if len(data) == 0 {
		return []string{}, []int{}
	}
	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	labels := make([]string, bins)
	counts := make([]int, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d-%d", int(lo+float64(i)*width), int(lo+float64(i+1)*width))
	}
	for _, x := range data {
		i := int((x - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	return labels, counts
}

// CategoryCount is one distinct value and how often it occurs.
type CategoryCount struct {
	Value string
	Count int
}

// valueCounts counts non-missing cells, most frequent first; ties keep first appearance.
func valueCounts(cells []string) []CategoryCount {
	idx := map[string]int{}
	var out []CategoryCount
	for _, c := range cells {
		if c == "" {
			continue
		}
		if i, ok := idx[c]; ok {
			out[i].Count++
			continue
		}
		idx[c] = len(out)
		out = append(out, CategoryCount{Value: c, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// correlation is the "correlacion" tool: the Pearson matrix over every numeric column, in
// heatmap cell form. Undefined coefficients are reported as 0.
func correlation(t *Table, _ Request) (Result, error) {
	var cols []string
	for _, c := range t.Columns {
		if t.Kind(c).Numeric() {
			cols = append(cols, c)
		}
	}
	cells := make([]map[string]any, 0, len(cols)*len(cols))
	for _, x := range cols {
		for _, y := range cols {
			r := 1.0
			if x != y {
				rows := pairedFloats(t, x, y)
				r = 0
				if len(rows) > 1 {
					r = stat.Correlation(column(rows, 0), column(rows, 1), nil)
				}
			}
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = 0
			}
			cells = append(cells, map[string]any{"x": x, "y": y, "value": r})
		}
	}
	if cols == nil {
		cols = []string{}
	}
	return Result{"variables": cols, "matriz": cells}, nil
}

func presentFloats(t *Table, col string) []float64 {
	vals, ok := t.Floats(col)
	out := make([]float64, 0, len(vals))
	for i, v := range vals {
		if ok[i] {
			out = append(out, v)
		}
	}
	return out
}
