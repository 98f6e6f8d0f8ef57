package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// seasonalDecomposition is the "descomposicion_serie" tool. X[0] is the date column and Y the
// value column; values are summed per calendar month (empty months count as 0) and split
// additively into trend, seasonal and residual parts.
func seasonalDecomposition(t *Table, req Request) (Result, error) {
	if req.Y == "" || len(req.X) == 0 {
		return nil, inputErrorf("Se requiere una columna de fecha (X) y una de valores (Y).")
	}
	dateCol, valueCol := req.X[0], req.Y
	period := intParam(req.Params, "periodo", 12)

	cells := t.Strings(dateCol)
	dates := make([]time.Time, len(cells))
	present := make([]bool, len(cells))
	for i, c := range cells {
		if c == "" {
			continue
		}
		d, ok := parseTimeMaybe(c)
		if !ok {
			return errorResult("No se pudo convertir la columna a fecha."), nil
		}
		dates[i], present[i] = d, true
	}
	if k := t.Kind(valueCol); !k.Numeric() {
		return incompatible("La columna de valores debe ser numérica.", valueCol, k), nil
	}
	vals, ok := t.Floats(valueCol)

	monthly := map[time.Time]float64{}
	for i := range dates {
		if !present[i] {
			continue
		}
		m := time.Date(dates[i].Year(), dates[i].Month(), 1, 0, 0, 0, 0, time.UTC)
		if ok[i] {
			monthly[m] += vals[i]
		} else if _, seen := monthly[m]; !seen {
			monthly[m] = 0
		}
	}
	months := make([]time.Time, 0, len(monthly))
	for m := range monthly {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	var series []float64
	var labels []string
	if len(months) > 0 {
		for m := months[0]; !m.After(months[len(months)-1]); m = m.AddDate(0, 1, 0) {
			series = append(series, monthly[m])
			// Label by month end.
			labels = append(labels, m.AddDate(0, 1, -1).Format("2006-01-02"))
		}
	}
	if len(series) < period*2 {
		return errorResult(fmt.Sprintf("Se necesitan al menos %d puntos de datos (meses/días) para descomponer.", period*2)), nil
	}

	trend := centeredMovingAverage(series, period)
	seasonal := seasonalComponent(series, trend, period)
	resid := make([]float64, len(series))
	for i := range series {
		resid[i] = series[i] - trend[i] - seasonal[i]
	}
	return Result{
		"fechas":         labels,
		"observado":      series,
		"tendencia":      zeroNaN(trend),
		"estacionalidad": zeroNaN(seasonal),
		"residuo":        zeroNaN(resid),
	}, nil
}

// centeredMovingAverage uses a 2xm average for even periods; ends without a full window
// are NaN.
func centeredMovingAverage(x []float64, period int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	half := period / 2
	for i := half; i < len(x)-half; i++ {
		var s float64
		if period%2 == 1 {
			for j := i - half; j <= i+half; j++ {
				s += x[j]
			}
			out[i] = s / float64(period)
			continue
		}
		s = 0.5*x[i-half] + 0.5*x[i+half]
		for j := i - half + 1; j < i+half; j++ {
			s += x[j]
		}
		out[i] = s / float64(period)
	}
	return out
}

// seasonalComponent averages the detrended series per position in the period and centres
// the pattern on zero.
func seasonalComponent(x, trend []float64, period int) []float64 {
	sums := make([]float64, period)
	counts := make([]int, period)
	for i := range x {
		if math.IsNaN(trend[i]) {
			continue
		}
		sums[i%period] += x[i] - trend[i]
		counts[i%period]++
	}
	pattern := make([]float64, period)
	var mean float64
	for p := range pattern {
		if counts[p] > 0 {
			pattern[p] = sums[p] / float64(counts[p])
		}
		mean += pattern[p]
	}
	mean /= float64(period)
	out := make([]float64, len(x))
	for i := range out {
		out[i] = pattern[i%period] - mean
	}
	return out
}

func zeroNaN(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out
}
