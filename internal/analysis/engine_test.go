package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, tbl *Table, req Request) Result {
	t.Helper()
	res, err := NewEngine().Run(tbl, req)
	require.NoError(t, err)
	return res
}

// classify pushes a result through the same path a service response takes.
func classify(t *testing.T, res Result, tool string) outcome.Outcome {
	t.Helper()
	raw, err := MarshalResult(res)
	require.NoError(t, err)
	return outcome.Classify(raw, tool)
}

func TestRunRejectsUnknownToolAndColumn(t *testing.T) {
	tbl := mustTable(t, "a,b", "1,2")
	_, err := NewEngine().Run(tbl, Request{Tool: "magia"})
	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.Msg, "magia")

	_, err = NewEngine().Run(tbl, Request{Tool: "resumen", X: []string{"zzz"}})
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.Msg, "zzz")
}

func TestEngineSupportsCatalog(t *testing.T) {
	e := NewEngine()
	for _, id := range []string{"resumen", "frecuencias", "correlacion", "ttest", "anova", "regresion_lineal",
		"regresion_logistica", "arbol_decision", "random_forest", "kmeans", "pca", "nube_palabras",
		"sentimiento", "descomposicion_serie", "pivot_table"} {
		assert.True(t, e.Supports(id), id)
	}
	assert.False(t, e.Supports("outliers"))
}

func TestSummary(t *testing.T) {
	tbl := mustTable(t, "v,name", "1,a", "2,b", "3,c", "4,d", "5,e")
	res := run(t, tbl, Request{Tool: "resumen", X: []string{"v", "name"}})
	require.Contains(t, res, "v")
	assert.NotContains(t, res, "name", "text columns are skipped")
	v := res["v"].(map[string]any)
	assert.Equal(t, 5.0, v["count"])
	assert.InDelta(t, 3.0, v["mean"], 1e-9)
	assert.InDelta(t, math.Sqrt(2.5), v["std"], 1e-9)
	assert.InDelta(t, 2.0, v["25%"], 1e-9)
	assert.InDelta(t, 3.0, v["50%"], 1e-9)
	assert.InDelta(t, 2.5, v["varianza"], 1e-9)
	assert.InDelta(t, 0.0, v["asimetria"], 1e-9)
	assert.Equal(t, outcome.KindSuccess, classify(t, res, "resumen").Kind())
}

func TestSummaryOfTextColumnsIsAnError(t *testing.T) {
	tbl := mustTable(t, "name", "a", "b")
	res := run(t, tbl, Request{Tool: "resumen", X: []string{"name"}})
	assert.Equal(t, outcome.ValidationError{Message: "Las columnas seleccionadas no son numéricas."}, classify(t, res, "resumen"))
}

func TestFrequencies(t *testing.T) {
	tbl := mustTable(t, "color,n", "red,1", "blue,2", "red,3", "green,4", "red,5", "blue,6")
	res := run(t, tbl, Request{Tool: "frecuencias", X: []string{"color"}})
	assert.Equal(t, "categorico", res["tipo"])
	assert.Equal(t, []string{"red", "blue", "green"}, res["etiquetas"])
	assert.Equal(t, []int{3, 2, 1}, res["valores"])

	res = run(t, tbl, Request{Tool: "frecuencias", X: []string{"n"}})
	assert.Equal(t, "numerico", res["tipo"])
	total := 0
	for _, c := range res["valores"].([]int) {
		total += c
	}
	assert.Equal(t, 6, total)
	assert.Len(t, res["etiquetas"], histogramBins)
}

func TestCorrelation(t *testing.T) {
	tbl := mustTable(t, "x,y,z,label", "1,2,10,a", "2,4,8,b", "3,6,6,c", "4,8,4,d")
	res := run(t, tbl, Request{Tool: "correlacion"})
	assert.Equal(t, []string{"x", "y", "z"}, res["variables"])
	cells := res["matriz"].([]any)
	require.Len(t, cells, 9)
	lookup := map[string]float64{}
	for _, c := range cells {
		m := c.(map[string]any)
		lookup[m["x"].(string)+"~"+m["y"].(string)] = m["value"].(float64)
	}
	assert.InDelta(t, 1.0, lookup["x~y"], 1e-9)
	assert.InDelta(t, -1.0, lookup["x~z"], 1e-9)
	assert.InDelta(t, 1.0, lookup["z~z"], 1e-9)
}

func TestTTest(t *testing.T) {
	tbl := mustTable(t, "grupo,valor",
		"a,1", "a,2", "a,3", "a,2", "a,1",
		"b,10", "b,11", "b,12", "b,11", "b,10")
	res := run(t, tbl, Request{Tool: "ttest", X: []string{"valor"}, Y: "grupo"})
	assert.Equal(t, []string{"a", "b"}, res["grupos_comparados"])
	assert.Less(t, res["p_valor"].(float64), 0.001)
	assert.Equal(t, true, res["es_significativo"])
	medias := res["medias"].(map[string]any)
	assert.InDelta(t, 1.8, medias["a"], 1e-9)
}

func TestTTestNeedsTwoGroups(t *testing.T) {
	tbl := mustTable(t, "grupo,valor", "a,1", "b,2", "c,3")
	res := run(t, tbl, Request{Tool: "ttest", X: []string{"valor"}, Y: "grupo"})
	o := classify(t, res, "ttest")
	require.Equal(t, outcome.KindValidationError, o.Kind())
	assert.Contains(t, outcome.Message(o), "exactamente 2 categorías. Encontradas: 3")
}

func TestAnova(t *testing.T) {
	tbl := mustTable(t, "g,v", "a,1", "a,2", "a,1", "b,5", "b,6", "b,5", "c,9", "c,10", "c,9")
	res := run(t, tbl, Request{Tool: "anova", X: []string{"v"}, Y: "g"})
	assert.Greater(t, res["estadistico_f"].(float64), 10.0)
	assert.Equal(t, true, res["es_significativo"])

	two := mustTable(t, "g,v", "a,1", "b,2")
	res = run(t, two, Request{Tool: "anova", X: []string{"v"}, Y: "g"})
	assert.Equal(t, outcome.KindValidationError, classify(t, res, "anova").Kind())
}

func TestLinearRegression(t *testing.T) {
	lines := []string{"x,y"}
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("%d,%d", i, 2*i+1))
	}
	res := run(t, mustTable(t, lines...), Request{Tool: "regresion_lineal", X: []string{"x"}, Y: "y"})
	assert.InDelta(t, 2.0, res["coeficientes"].(map[string]any)["x"], 1e-6)
	assert.InDelta(t, 1.0, res["intercepto"], 1e-6)
	assert.InDelta(t, 1.0, res["metrica_r2"], 1e-6)
	assert.Nil(t, res["variables_codificadas"])
}

func TestLinearRegressionEncodesTextFeatures(t *testing.T) {
	lines := []string{"x,zona,y"}
	for i := 1; i <= 12; i++ {
		zona, bump := "norte", 0
		if i%2 == 0 {
			zona, bump = "sur", 5
		}
		lines = append(lines, fmt.Sprintf("%d,%s,%d", i, zona, 3*i+bump))
	}
	res := run(t, mustTable(t, lines...), Request{Tool: "regresion_lineal", X: []string{"x", "zona"}, Y: "y"})
	coefs := res["coeficientes"].(map[string]any)
	assert.InDelta(t, 3.0, coefs["x"], 1e-6)
	assert.InDelta(t, 5.0, coefs["zona_sur"], 1e-6)
	assert.Equal(t, []string{"zona"}, res["variables_codificadas"])
}

func TestLinearRegressionTextTargetIsIncompatible(t *testing.T) {
	tbl := mustTable(t, "x,y", "1,a", "2,b")
	res := run(t, tbl, Request{Tool: "regresion_lineal", X: []string{"x"}, Y: "y"})
	got, ok := classify(t, res, "regresion_lineal").(outcome.IncompatibleColumnType)
	require.True(t, ok)
	assert.Equal(t, "y", got.Column)
	assert.Equal(t, "object", got.DetectedType)
}

func TestLogisticRegression(t *testing.T) {
	lines := []string{"x,clase"}
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("%d,bajo", i))
	}
	for i := 21; i <= 30; i++ {
		lines = append(lines, fmt.Sprintf("%d,alto", i))
	}
	res := run(t, mustTable(t, lines...), Request{Tool: "regresion_logistica", X: []string{"x"}, Y: "clase"})
	assert.Equal(t, 1.0, res["accuracy"])
	assert.Equal(t, map[string]string{"0": "alto", "1": "bajo"}, res["clases_mapeo"])
	assert.Equal(t, outcome.KindSuccess, classify(t, res, "regresion_logistica").Kind())
}

func TestClassifiersRejectHighCardinalityTargets(t *testing.T) {
	lines := []string{"x,ciudad"}
	for i := 0; i < 60; i++ {
		lines = append(lines, fmt.Sprintf("%d,c%02d", i, i))
	}
	tbl := mustTable(t, lines...)
	for _, tool := range []string{"random_forest", "regresion_logistica", "arbol_decision"} {
		res := run(t, tbl, Request{Tool: tool, X: []string{"x"}, Y: "ciudad"})
		got, ok := classify(t, res, tool).(outcome.HighCardinalityTarget)
		require.True(t, ok, tool)
		assert.Equal(t, "ciudad", got.TargetColumn)
		assert.Equal(t, 60, got.ClassCount)
	}
}

func TestUnavailableToolsReportValidation(t *testing.T) {
	tbl := mustTable(t, "x,y,txt", "1,a,hola", "2,b,adios")
	res := run(t, tbl, Request{Tool: "random_forest", X: []string{"x"}, Y: "y"})
	assert.Contains(t, res["error"], "no está disponible")
	res = run(t, tbl, Request{Tool: "sentimiento", Y: "txt"})
	assert.Equal(t, outcome.KindValidationError, classify(t, res, "sentimiento").Kind())
}

func TestKMeans(t *testing.T) {
	tbl := mustTable(t, "a,b", "1,1", "1.2,1", "1,1.2", "10,10", "10.2,10", "10,10.2")
	res := run(t, tbl, Request{Tool: "kmeans", X: []string{"a", "b"}, Params: map[string]any{"n_clusters": 2}})
	assert.Equal(t, 2, res["num_clusters"])
	assert.Equal(t, map[string]int{"0": 3, "1": 3}, res["distribucion"])
	plot := res["plot_data"].([]any)
	require.Len(t, plot, 6)
	first := plot[0].(map[string]any)
	last := plot[5].(map[string]any)
	assert.NotEqual(t, first["c"], last["c"])

	res = run(t, tbl, Request{Tool: "kmeans", X: []string{"a"}, Params: map[string]any{"n_clusters": 10}})
	assert.Equal(t, "No hay suficientes datos para crear clusters.", res["error"])
}

func TestPCA(t *testing.T) {
	tbl := mustTable(t, "x,y", "1,2", "2,4.1", "3,5.9", "4,8", "5,10.1")
	res := run(t, tbl, Request{Tool: "pca", X: []string{"x", "y"}})
	ratios := res["varianza_explicada"].([]any)
	require.Len(t, ratios, 2)
	assert.Greater(t, ratios[0].(float64), 0.99)
	assert.Len(t, res["plot_data"], 5)
}

func TestWordCloud(t *testing.T) {
	tbl := mustTable(t, "comentario", "Excelente servicio y excelente precio", "El servicio fue lento", "precio justo!")
	res := run(t, tbl, Request{Tool: "nube_palabras", Y: "comentario"})
	words := res["palabras"].([]any)
	require.NotEmpty(t, words)
	top := words[0].(map[string]any)
	assert.Equal(t, "excelente", top["text"])
	assert.Equal(t, 2, top["value"])
	for _, w := range words {
		assert.NotEqual(t, "el", w.(map[string]any)["text"])
	}
}

func monthlyRows(months int) []string {
	lines := []string{"fecha,ventas"}
	for i := 0; i < months; i++ {
		lines = append(lines, fmt.Sprintf("%d-%02d-15,%d", 2020+i/12, i%12+1, 100+i*2+(i%12)*3))
	}
	return lines
}

func TestSeasonalDecomposition(t *testing.T) {
	res := run(t, mustTable(t, monthlyRows(36)...), Request{Tool: "descomposicion_serie", X: []string{"fecha"}, Y: "ventas"})
	fechas := res["fechas"].([]string)
	require.Len(t, fechas, 36)
	assert.Equal(t, "2020-01-31", fechas[0])
	assert.Equal(t, "2020-02-29", fechas[1])
	for _, key := range []string{"observado", "tendencia", "estacionalidad", "residuo"} {
		assert.Len(t, res[key], 36, key)
	}
	trend := res["tendencia"].([]any)
	assert.Equal(t, 0.0, trend[0], "edges without a full window are zero")
	assert.NotZero(t, trend[18])
}

func TestSeasonalDecompositionNeedsTwoPeriods(t *testing.T) {
	res := run(t, mustTable(t, monthlyRows(20)...), Request{Tool: "descomposicion_serie", X: []string{"fecha"}, Y: "ventas"})
	got, ok := classify(t, res, "descomposicion_serie").(outcome.InsufficientDataPoints)
	require.True(t, ok)
	assert.Equal(t, 24, got.RequiredCount)

	res = run(t, mustTable(t, monthlyRows(20)...), Request{
		Tool: "descomposicion_serie", X: []string{"fecha"}, Y: "ventas", Params: map[string]any{"periodo": 4.0},
	})
	assert.NotContains(t, res, "error")
}

func TestSeasonalDecompositionBadDates(t *testing.T) {
	tbl := mustTable(t, "fecha,ventas", "2020-01-01,1", "ayer,2")
	res := run(t, tbl, Request{Tool: "descomposicion_serie", X: []string{"fecha"}, Y: "ventas"})
	assert.Equal(t, outcome.UnparsableDate{Message: "No se pudo convertir la columna a fecha."}, classify(t, res, "descomposicion_serie"))
}

func TestPivotTable(t *testing.T) {
	tbl := mustTable(t, "depto,mes,monto",
		"ventas,ene,10", "ventas,ene,5", "ventas,feb,7", "rrhh,feb,3")
	res := run(t, tbl, Request{Tool: "pivot_table", X: []string{"mes", "monto"}, Y: "depto"})
	assert.Equal(t, []string{"ene", "feb"}, res["eje_x"])
	assert.Equal(t, []string{"rrhh", "ventas"}, res["eje_y"])
	values := map[string]float64{}
	for _, d := range res["datos"].([]any) {
		m := d.(map[string]any)
		values[m["y"].(string)+"/"+m["x"].(string)] = m["value"].(float64)
	}
	assert.Equal(t, 15.0, values["ventas/ene"])
	assert.Equal(t, 0.0, values["rrhh/ene"])

	res = run(t, tbl, Request{Tool: "pivot_table", X: []string{"mes", "monto"}, Y: "depto", Params: map[string]any{"aggfunc": "mean"}})
	for _, d := range res["datos"].([]any) {
		m := d.(map[string]any)
		if m["y"] == "ventas" && m["x"] == "ene" {
			assert.Equal(t, 7.5, m["value"])
		}
	}
}

func TestPivotTableErrors(t *testing.T) {
	tbl := mustTable(t, "depto,mes,monto", "ventas,ene,10", "rrhh,feb,x")
	res := run(t, tbl, Request{Tool: "pivot_table", X: []string{"monto", "mes"}, Y: "depto"})
	assert.Equal(t, outcome.KindIncompatibleColumnType, classify(t, res, "pivot_table").Kind(), "text values column")

	num := mustTable(t, "id,mes,monto", "1,ene,10", "2,feb,3")
	res = run(t, num, Request{Tool: "pivot_table", X: []string{"mes", "monto"}, Y: "id"})
	got, ok := classify(t, res, "pivot_table").(outcome.IncompatibleColumnType)
	require.True(t, ok)
	assert.Equal(t, "id", got.Column)
	assert.Equal(t, "int64", got.DetectedType)

	lines := []string{"cliente,mes,monto"}
	for i := 0; i < 120; i++ {
		lines = append(lines, fmt.Sprintf("c%03d,ene,%d", i, i))
	}
	res = run(t, mustTable(t, lines...), Request{Tool: "pivot_table", X: []string{"mes", "monto"}, Y: "cliente"})
	hc, ok := classify(t, res, "pivot_table").(outcome.HighCardinalityTarget)
	require.True(t, ok)
	assert.Equal(t, "cliente", hc.TargetColumn)
	assert.Equal(t, 120, hc.ClassCount)

	_, err := NewEngine().Run(tbl, Request{Tool: "pivot_table", X: []string{"mes"}, Y: "depto"})
	var ie *InputError
	assert.True(t, errors.As(err, &ie))
	_, err = NewEngine().Run(tbl, Request{Tool: "pivot_table", X: []string{"mes", "monto"}, Y: "depto", Params: map[string]any{"aggfunc": "mode"}})
	assert.True(t, errors.As(err, &ie))
}

func TestResultsAreValidJSON(t *testing.T) {
	// A constant column has undefined skewness; it must encode as null.
	tbl := mustTable(t, "v", "3", "3", "3", "3")
	res := run(t, tbl, Request{Tool: "resumen", X: []string{"v"}})
	raw, err := MarshalResult(res)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
	assert.True(t, strings.Contains(string(raw), `"asimetria":null`))
}
