package present

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
	"github.com/KaramelBytes/analytica-cli/internal/utils"
)

type renderFunc func(w io.Writer, payload map[string]any) bool

// renderers maps each renderer capability to its function. A function returns false when the
// payload does not have the shape it expects; the caller then prints raw JSON.
var renderers = map[tools.Renderer]renderFunc{
	tools.RendererSummary:    renderSummary,
	tools.RendererFrequency:  renderFrequency,
	tools.RendererMatrix:     renderMatrix,
	tools.RendererTest:       renderKeyValues,
	tools.RendererModel:      renderModel,
	tools.RendererClusters:   renderClusters,
	tools.RendererText:       renderText,
	tools.RendererTimeSeries: renderTimeSeries,
	tools.RendererPivot:      renderPivot,
}

// Outcome prints o: the tool's renderer for a success, the dialog for an error.
func Outcome(w io.Writer, d tools.Descriptor, o outcome.Outcome) error {
	if dlg, ok := DialogFor(o, d.ID); ok {
		WriteDialog(w, dlg)
		return nil
	}
	succ, ok := o.(outcome.Success)
	if !ok {
		return fmt.Errorf("render: unexpected outcome %T", o)
	}
	fmt.Fprintf(w, "✓ %s\n", d.DisplayName)
	var payload map[string]any
	if err := json.Unmarshal(succ.Payload, &payload); err == nil {
		if fn, ok := renderers[d.Renderer]; ok && fn(w, payload) {
			return nil
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", utils.PrettyRaw(succ.Payload))
	return err
}

// Metadata prints the uploaded file's shape and preview.
func Metadata(w io.Writer, m service.FileMetadata) {
	fmt.Fprintf(w, "✓ Loaded %s: %d rows, %d columns\n", m.Filename, m.RowCount, len(m.Columns))
	rows := m.PreviewRows()
	if len(rows) == 0 {
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, strings.Join(m.Columns, "\t"))
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = cell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// Pareto prints the drill-down table.
func Pareto(w io.Writer, p service.ParetoResult) {
	fmt.Fprintf(w, "✓ Pareto of %q (%d records)\n", p.AnalyzedColumn, p.TotalRecords)
	tw := newTable(w)
	fmt.Fprintln(tw, "CLASS\tLABEL\tFREQ\t%\tCUM %")
	for _, it := range p.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.1f\n", it.Class, it.Label, it.Frequency, it.Percentage, it.CumulativePercentage)
	}
	tw.Flush()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func renderSummary(w io.Writer, p map[string]any) bool {
	stats := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max", "moda", "asimetria", "curtosis"}
	cols := sortedKeys(p)
	if len(cols) == 0 {
		return false
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "STAT\t"+strings.Join(cols, "\t"))
	for _, s := range stats {
		row := []string{s}
		for _, c := range cols {
			m, ok := p[c].(map[string]any)
			if !ok {
				return false
			}
			row = append(row, cell(m[s]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	return true
}

func renderFrequency(w io.Writer, p map[string]any) bool {
	labels, ok1 := p["etiquetas"].([]any)
	values, ok2 := p["valores"].([]any)
	if !ok1 || !ok2 || len(labels) != len(values) {
		return false
	}
	maxV := 0.0
	for _, v := range values {
		if f, ok := v.(float64); ok && f > maxV {
			maxV = f
		}
	}
	tw := newTable(w)
	for i := range labels {
		f, _ := values[i].(float64)
		bar := 0
		if maxV > 0 {
			bar = int(f / maxV * 30)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cell(labels[i]), cell(values[i]), strings.Repeat("█", bar))
	}
	tw.Flush()
	return true
}

func renderMatrix(w io.Writer, p map[string]any) bool {
	vars := strs(p["variables"])
	cells, ok := p["matriz"].([]any)
	if vars == nil || !ok {
		return false
	}
	grid := map[[2]string]any{}
	for _, c := range cells {
		m, ok := c.(map[string]any)
		if !ok {
			return false
		}
		grid[[2]string{cell(m["x"]), cell(m["y"])}] = m["value"]
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "\t"+strings.Join(vars, "\t"))
	for _, y := range vars {
		row := []string{y}
		for _, x := range vars {
			row = append(row, cell(grid[[2]string{x, y}]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	return true
}

func renderModel(w io.Writer, p map[string]any) bool {
	tw := newTable(w)
	for _, k := range sortedKeys(p) {
		switch v := p[k].(type) {
		case map[string]any:
			fmt.Fprintf(tw, "%s:\t\n", k)
			for _, kk := range sortedKeys(v) {
				fmt.Fprintf(tw, "  %s\t%s\n", kk, cell(v[kk]))
			}
		case []any:
			if k == "matriz_confusion" {
				fmt.Fprintf(tw, "%s:\t\n", k)
				for _, row := range v {
					fmt.Fprintf(tw, "  \t%s\n", cell(row))
				}
				continue
			}
			if len(v) > 10 {
				fmt.Fprintf(tw, "%s\t[%d values]\n", k, len(v))
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\n", k, cell(v))
		default:
			fmt.Fprintf(tw, "%s\t%s\n", k, cell(v))
		}
	}
	tw.Flush()
	return true
}

func renderClusters(w io.Writer, p map[string]any) bool {
	dist, ok := p["distribucion"].(map[string]any)
	if !ok {
		return false
	}
	fmt.Fprintf(w, "clusters: %s\n", cell(p["num_clusters"]))
	tw := newTable(w)
	profile, _ := p["perfil_promedio"].(map[string]any)
	features := sortedKeys(profile)
	fmt.Fprintln(tw, "CLUSTER\tSIZE\t"+strings.Join(features, "\t"))
	ids := sortedKeys(dist)
	sort.SliceStable(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	for _, id := range ids {
		row := []string{id, cell(dist[id])}
		for _, f := range features {
			byCluster, _ := profile[f].(map[string]any)
			row = append(row, cell(byCluster[id]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	return true
}

func renderText(w io.Writer, p map[string]any) bool {
	words, ok := p["palabras"].([]any)
	if !ok {
		return renderKeyValues(w, p)
	}
	tw := newTable(w)
	for _, item := range words {
		m, ok := item.(map[string]any)
		if !ok {
			return false
		}
		fmt.Fprintf(tw, "%s\t%s\n", cell(m["text"]), cell(m["value"]))
	}
	tw.Flush()
	return true
}

func renderTimeSeries(w io.Writer, p map[string]any) bool {
	dates := strs(p["fechas"])
	series := []string{"observado", "tendencia", "estacionalidad", "residuo"}
	cols := make([][]any, len(series))
	for i, s := range series {
		v, ok := p[s].([]any)
		if !ok || len(v) != len(dates) {
			return false
		}
		cols[i] = v
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tOBSERVED\tTREND\tSEASONAL\tRESIDUAL")
	for i, d := range dates {
		row := []string{d}
		for _, c := range cols {
			row = append(row, cell(c[i]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	return true
}

func renderPivot(w io.Writer, p map[string]any) bool {
	xs, ys := strs(p["eje_x"]), strs(p["eje_y"])
	data, ok := p["datos"].([]any)
	if xs == nil || ys == nil || !ok {
		return false
	}
	grid := map[[2]string]any{}
	for _, d := range data {
		m, ok := d.(map[string]any)
		if !ok {
			return false
		}
		grid[[2]string{cell(m["x"]), cell(m["y"])}] = m["value"]
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "\t"+strings.Join(xs, "\t"))
	for _, y := range ys {
		row := []string{y}
		for _, x := range xs {
			row = append(row, cell(grid[[2]string{x, y}]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	return true
}

func renderKeyValues(w io.Writer, p map[string]any) bool {
	tw := newTable(w)
	for _, k := range sortedKeys(p) {
		fmt.Fprintf(tw, "%s\t%s\n", k, cell(p[k]))
	}
	tw.Flush()
	return true
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case float64:
		if x == float64(int64(x)) && x < 1e15 && x > -1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 4, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		parts := make([]string, 0, len(x))
		for _, k := range sortedKeys(x) {
			parts = append(parts, k+"="+cell(x[k]))
		}
		return strings.Join(parts, " ")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = cell(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return fmt.Sprint(v)
}

func strs(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = cell(e)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
