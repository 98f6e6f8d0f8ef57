package analysis

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// testEvery puts every fifth complete row in the test split, a deterministic 80/20.
const testEvery = 5

func isTestRow(i, n int) bool {
	return n >= testEvery && i%testEvery == testEvery-1
}

// design is a numeric model matrix built from mixed feature columns.
type design struct {
	names   []string
	rows    [][]float64
	targets []string
	encoded []string
}

// buildDesign one-hot encodes text features (dropping the first category) and keeps the
// rows where the target and every feature are present.
func buildDesign(t *Table, target string, features []string) design {
	type enc struct {
		col     string
		numeric bool
		cats    []string
		vals    []float64
		ok      []bool
		cells   []string
	}
	var d design
	encs := make([]enc, len(features))
	for i, f := range features {
		e := enc{col: f, numeric: t.Kind(f).Numeric()}
		if e.numeric {
			e.vals, e.ok = t.Floats(f)
			d.names = append(d.names, f)
		} else {
			e.cells = t.Strings(f)
			seen := map[string]bool{}
			for _, c := range e.cells {
				if c != "" && !seen[c] {
					seen[c] = true
					e.cats = append(e.cats, c)
				}
			}
			sort.Strings(e.cats)
			for _, c := range e.cats[min(1, len(e.cats)):] {
				d.names = append(d.names, f+"_"+c)
			}
			d.encoded = append(d.encoded, f)
		}
		encs[i] = e
	}
	targets := t.Strings(target)
	for r := 0; r < t.Len(); r++ {
		if targets[r] == "" {
			continue
		}
		row := make([]float64, 0, len(d.names))
		complete := true
		for _, e := range encs {
			if e.numeric {
				if !e.ok[r] {
					complete = false
					break
				}
				row = append(row, e.vals[r])
				continue
			}
			if e.cells[r] == "" {
				complete = false
				break
			}
			for _, c := range e.cats[min(1, len(e.cats)):] {
				if e.cells[r] == c {
					row = append(row, 1)
				} else {
					row = append(row, 0)
				}
			}
		}
		if complete {
			d.rows = append(d.rows, row)
			d.targets = append(d.targets, targets[r])
		}
	}
	return d
}

func incompatible(msg, col string, k Kind) Result {
	return errorResult(msg, "columna", col, "dtype", k.DType())
}

// linearRegression is the "regresion_lineal" tool: ordinary least squares fitted on the
// training split and scored on the test split.
func linearRegression(t *Table, req Request) (Result, error) {
	if req.Y == "" || len(req.X) == 0 {
		return nil, inputErrorf("Se requiere una variable objetivo (Y) y al menos una variable (X).")
	}
	if k := t.Kind(req.Y); !k.Numeric() {
		return incompatible("La variable objetivo debe ser numérica para una regresión lineal.", req.Y, k), nil
	}
	d := buildDesign(t, req.Y, req.X)
	p := len(d.names)
	var trainX, testX [][]float64
	var trainY, testY []float64
	for i, row := range d.rows {
		y, _ := parseNumeric(d.targets[i], t.opt)
		if isTestRow(i, len(d.rows)) {
			testX, testY = append(testX, row), append(testY, y)
		} else {
			trainX, trainY = append(trainX, row), append(trainY, y)
		}
	}
	if len(testX) == 0 {
		testX, testY = trainX, trainY
	}
	if len(trainX) <= p {
		return errorResult("No hay suficientes filas completas para ajustar el modelo."), nil
	}

	a := mat.NewDense(len(trainX), p+1, nil)
	for i, row := range trainX {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	var beta mat.VecDense
	if err := beta.SolveVec(a, mat.NewVecDense(len(trainY), trainY)); err != nil {
		return errorResult("No se pudo ajustar el modelo: las variables son colineales."), nil
	}

	pred := make([]float64, len(testX))
	for i, row := range testX {
		v := beta.AtVec(0)
		for j, x := range row {
			v += beta.AtVec(j+1) * x
		}
		pred[i] = v
	}
	var mse float64
	for i := range pred {
		mse += (testY[i] - pred[i]) * (testY[i] - pred[i])
	}
	mse /= float64(len(pred))

	coefs := make(map[string]float64, p)
	for j, name := range d.names {
		coefs[name] = beta.AtVec(j + 1)
	}
	var encoded any
	if len(d.encoded) > 0 {
		encoded = d.encoded
	}
	n := min(20, len(pred))
	return Result{
		"metrica_r2":            stat.RSquaredFrom(pred, testY, nil),
		"error_mse":             mse,
		"coeficientes":          coefs,
		"intercepto":            beta.AtVec(0),
		"variables_codificadas": encoded,
		"grafico_prediccion": map[string]any{
			"real":     testY[:n],
			"predicho": pred[:n],
		},
	}, nil
}

// logisticRegression is the "regresion_logistica" tool: one-vs-rest logistic models over
// standardized numeric features, trained by gradient descent.
func logisticRegression(t *Table, req Request) (Result, error) {
	if req.Y == "" || len(req.X) == 0 {
		return nil, inputErrorf("Se requiere una variable objetivo (Y) y al menos una variable (X).")
	}
	for _, f := range req.X {
		if k := t.Kind(f); !k.Numeric() {
			return incompatible("Las variables predictoras deben ser numéricas.", f, k), nil
		}
	}
	d := buildDesign(t, req.Y, req.X)
	classes := sortedDistinct(d.targets)
	if len(classes) > maxClasses {
		return tooManyClasses(req.Y, len(classes)), nil
	}
	if len(classes) < 2 {
		return errorResult("La variable objetivo debe tener al menos 2 clases."), nil
	}
	classIdx := make(map[string]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}

	var trainX, testX [][]float64
	var trainY, testY []int
	for i, row := range d.rows {
		y := classIdx[d.targets[i]]
		if isTestRow(i, len(d.rows)) {
			testX, testY = append(testX, row), append(testY, y)
		} else {
			trainX, trainY = append(trainX, row), append(trainY, y)
		}
	}
	if len(testX) == 0 {
		testX, testY = trainX, trainY
	}
	means, stds := standardizer(trainX)
	scale := func(rows [][]float64) [][]float64 {
		out := make([][]float64, len(rows))
		for i, r := range rows {
			out[i] = make([]float64, len(r))
			for j, v := range r {
				out[i][j] = (v - means[j]) / stds[j]
			}
		}
		return out
	}
	trainS, testS := scale(trainX), scale(testX)

	weights := make([][]float64, len(classes))
	for c := range classes {
		if len(classes) == 2 && c == 0 {
			continue
		}
		labels := make([]float64, len(trainY))
		for i, y := range trainY {
			if y == c {
				labels[i] = 1
			}
		}
		weights[c] = fitLogistic(trainS, labels)
	}
	predict := func(x []float64) int {
		if len(classes) == 2 {
			if sigmoid(dot(weights[1], x)) >= 0.5 {
				return 1
			}
			return 0
		}
		best, bestP := 0, -1.0
		for c, w := range weights {
			if p := sigmoid(dot(w, x)); p > bestP {
				best, bestP = c, p
			}
		}
		return best
	}

	confusion := make([][]int, len(classes))
	for i := range confusion {
		confusion[i] = make([]int, len(classes))
	}
	correct := 0
	for i, x := range testS {
		got := predict(x)
		confusion[testY[i]][got]++
		if got == testY[i] {
			correct++
		}
	}
	mapping := make(map[string]string, len(classes))
	for i, c := range classes {
		mapping[strconv.Itoa(i)] = c
	}
	return Result{
		"accuracy":         float64(correct) / float64(len(testS)),
		"matriz_confusion": confusion,
		"clases_mapeo":     mapping,
	}, nil
}

func fitLogistic(x [][]float64, y []float64) []float64 {
	const (
		iterations = 500
		rate       = 0.1
	)
	p := len(x[0])
	w := make([]float64, p+1)
	grad := make([]float64, p+1)
	n := float64(len(x))
	for it := 0; it < iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		for i, row := range x {
			e := sigmoid(dot(w, row)) - y[i]
			grad[0] += e
			for j, v := range row {
				grad[j+1] += e * v
			}
		}
		for j := range w {
			w[j] -= rate * grad[j] / n
		}
	}
	return w
}

// dot evaluates w[0] + w[1:]·x.
func dot(w, x []float64) float64 {
	s := w[0]
	for j, v := range x {
		s += w[j+1] * v
	}
	return s
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func standardizer(rows [][]float64) (means, stds []float64) {
	if len(rows) == 0 {
		return nil, nil
	}
	p := len(rows[0])
	means = make([]float64, p)
	stds = make([]float64, p)
	for j := 0; j < p; j++ {
		col := column(rows, j)
		m, s := stat.PopMeanStdDev(col, nil)
		if s == 0 || math.IsNaN(s) {
			s = 1
		}
		means[j], stds[j] = m, s
	}
	return means, stds
}

func sortedDistinct(vals []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// kMeans is the "kmeans" tool: Lloyd's algorithm on standardized features, seeded with
// farthest-point initialisation so results are reproducible.
func kMeans(t *Table, req Request) (Result, error) {
	if len(req.X) == 0 {
		return nil, inputErrorf("Seleccione al menos una variable numérica.")
	}
	for _, f := range req.X {
		if k := t.Kind(f); !k.Numeric() {
			return incompatible("Las variables para K-Means deben ser numéricas.", f, k), nil
		}
	}
	k := intParam(req.Params, "n_clusters", 3)
	rows := pairedFloats(t, req.X...)
	if len(rows) < k {
		return errorResult("No hay suficientes datos para crear clusters."), nil
	}
	means, stds := standardizer(rows)
	scaled := make([][]float64, len(rows))
	for i, r := range rows {
		scaled[i] = make([]float64, len(r))
		for j, v := range r {
			scaled[i][j] = (v - means[j]) / stds[j]
		}
	}
	labels := lloyd(scaled, k, 100)

	dist := map[string]int{}
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, len(req.X))
	}
	plot := make([]map[string]any, len(rows))
	for i, r := range rows {
		c := labels[i]
		dist[strconv.Itoa(c)]++
		counts[c]++
		for j, v := range r {
			sums[c][j] += v
		}
		y := 0.0
		if len(r) > 1 {
			y = r[1]
		}
		plot[i] = map[string]any{"x": r[0], "y": y, "c": c}
	}
	profile := map[string]any{}
	for j, f := range req.X {
		byCluster := map[string]float64{}
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				byCluster[strconv.Itoa(c)] = sums[c][j] / float64(counts[c])
			}
		}
		profile[f] = byCluster
	}
	return Result{
		"num_clusters":    k,
		"distribucion":    dist,
		"perfil_promedio": profile,
		"plot_data":       plot,
	}, nil
}

func lloyd(points [][]float64, k, maxIter int) []int {
	centers := [][]float64{append([]float64(nil), points[0]...)}
	for len(centers) < k {
		far, farD := 0, -1.0
		for i, p := range points {
			d := math.Inf(1)
			for _, c := range centers {
				d = math.Min(d, sqDist(p, c))
			}
			if d > farD {
				far, farD = i, d
			}
		}
		centers = append(centers, append([]float64(nil), points[far]...))
	}
	labels := make([]int, len(points))
	for it := 0; it < maxIter; it++ {
		changed := it == 0
		for i, p := range points {
			best, bestD := 0, math.Inf(1)
			for c, ctr := range centers {
				if d := sqDist(p, ctr); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range centers {
			n := 0
			sum := make([]float64, len(centers[c]))
			for i, p := range points {
				if labels[i] != c {
					continue
				}
				n++
				for j, v := range p {
					sum[j] += v
				}
			}
			if n == 0 {
				continue
			}
			for j := range sum {
				centers[c][j] = sum[j] / float64(n)
			}
		}
	}
	return labels
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// principalComponents is the "pca" tool over standardized numeric features.
func principalComponents(t *Table, req Request) (Result, error) {
	if len(req.X) < 2 {
		return nil, inputErrorf("PCA requiere al menos 2 variables numéricas.")
	}
	for _, f := range req.X {
		if k := t.Kind(f); !k.Numeric() {
			return incompatible("Las variables para PCA deben ser numéricas.", f, k), nil
		}
	}
	rows := pairedFloats(t, req.X...)
	if len(rows) < 2 {
		return errorResult("No hay suficientes filas completas para PCA."), nil
	}
	means, stds := standardizer(rows)
	data := mat.NewDense(len(rows), len(req.X), nil)
	for i, r := range rows {
		for j, v := range r {
			data.Set(i, j, (v-means[j])/stds[j])
		}
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return errorResult("No se pudo calcular la descomposición PCA."), nil
	}
	vars := pc.VarsTo(nil)
	var total float64
	for _, v := range vars {
		total += v
	}
	ratios := make([]float64, len(vars))
	for i, v := range vars {
		ratios[i] = v / total
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, ncomp := vecs.Dims()
	components := make([]map[string]float64, ncomp)
	for c := 0; c < ncomp; c++ {
		load := make(map[string]float64, len(req.X))
		for j, f := range req.X {
			load[f] = vecs.At(j, c)
		}
		components[c] = load
	}
	var proj mat.Dense
	proj.Mul(data, &vecs)
	plot := make([]map[string]any, len(rows))
	for i := range rows {
		y := 0.0
		if ncomp > 1 {
			y = proj.At(i, 1)
		}
		plot[i] = map[string]any{"x": proj.At(i, 0), "y": y}
	}
	return Result{
		"varianza_explicada": ratios,
		"componentes":        components,
		"plot_data":          plot,
	}, nil
}
