package analysis

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

const significance = 0.05

type group struct {
	label  string
	values []float64
}

// groupValues splits the numeric valueCol by groupCol, groups in first-appearance order.
func groupValues(t *Table, groupCol, valueCol string) []group {
	labels := t.Strings(groupCol)
	vals, ok := t.Floats(valueCol)
	idx := map[string]int{}
	var out []group
	for r := range labels {
		if labels[r] == "" || !ok[r] {
			continue
		}
		i, seen := idx[labels[r]]
		if !seen {
			i = len(out)
			idx[labels[r]] = i
			out = append(out, group{label: labels[r]})
		}
		out[i].values = append(out[i].values, vals[r])
	}
	return out
}

// tTest is the "ttest" tool: Y is the two-category group column, X[0] the numeric value
// column. Student's t with pooled variance.
func tTest(t *Table, req Request) (Result, error) {
	if req.Y == "" || len(req.X) == 0 {
		return nil, inputErrorf("Se requiere una variable de grupo (Y) y una numérica (X).")
	}
	groups := groupValues(t, req.Y, req.X[0])
	if len(groups) != 2 {
		return errorResult(fmt.Sprintf("La variable '%s' debe tener exactamente 2 categorías. Encontradas: %d", req.Y, len(groups))), nil
	}
	a, b := groups[0], groups[1]
	ma, _ := stats.Mean(a.values)
	mb, _ := stats.Mean(b.values)
	p := math.NaN()
	na, nb := float64(len(a.values)), float64(len(b.values))
	if na > 1 && nb > 1 {
		va, _ := stats.SampleVariance(a.values)
		vb, _ := stats.SampleVariance(b.values)
		df := na + nb - 2
		pooled := ((na-1)*va + (nb-1)*vb) / df
		se := math.Sqrt(pooled * (1/na + 1/nb))
		if se > 0 {
			tStat := (ma - mb) / se
			dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
			p = 2 * (1 - dist.CDF(math.Abs(tStat)))
		}
	}
	significant := p < significance
	conclusion := "No hay evidencia suficiente para decir que son diferentes."
	if significant {
		conclusion = "Existe una diferencia significativa entre los grupos."
	}
	return Result{
		"prueba":            "T-Test de Muestras Independientes",
		"grupos_comparados": []string{a.label, b.label},
		"medias":            map[string]float64{a.label: ma, b.label: mb},
		"p_valor":           p,
		"es_significativo":  significant,
		"conclusion":        conclusion,
	}, nil
}

// anova is the one-way "anova" tool over three or more groups.
func anova(t *Table, req Request) (Result, error) {
	if req.Y == "" || len(req.X) == 0 {
		return nil, inputErrorf("Se requiere una variable de grupo (Y) y una numérica (X).")
	}
	groups := groupValues(t, req.Y, req.X[0])
	if len(groups) < 3 {
		return errorResult("ANOVA requiere al menos 3 grupos. Use T-Test para 2."), nil
	}
	var all []float64
	for _, g := range groups {
		all = append(all, g.values...)
	}
	grand, _ := stats.Mean(all)
	var ssb, ssw float64
	for _, g := range groups {
		m, _ := stats.Mean(g.values)
		ssb += float64(len(g.values)) * (m - grand) * (m - grand)
		for _, x := range g.values {
			ssw += (x - m) * (x - m)
		}
	}
	df1 := float64(len(groups) - 1)
	df2 := float64(len(all) - len(groups))
	f, p := math.NaN(), math.NaN()
	if df2 > 0 && ssw > 0 {
		f = (ssb / df1) / (ssw / df2)
		p = 1 - distuv.F{D1: df1, D2: df2}.CDF(f)
	}
	significant := p < significance
	conclusion := "Todos los grupos tienen comportamientos similares."
	if significant {
		conclusion = "Al menos un grupo es estadísticamente diferente a los demás."
	}
	return Result{
		"prueba":           "ANOVA de un factor",
		"estadistico_f":    f,
		"p_valor":          p,
		"es_significativo": significant,
		"conclusion":       conclusion,
	}, nil
}
