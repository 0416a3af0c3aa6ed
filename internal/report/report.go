// Package report renders the model views as terminal text.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/framework"
	coinmath "github.com/drakos74/free-model/internal/math"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
)

const precision = 4

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

// Summary renders the layers of a model.
func Summary(w io.Writer, layers []assembly.LayerSummary) {
	table := newTable(w, "layer", "kind", "shape", "connected to", "params", "role")
	total := 0
	for _, l := range layers {
		role := ""
		switch {
		case l.IsInput:
			role = "input"
		case l.IsOutput:
			role = "output"
		}
		table.Append([]string{l.Name, string(l.Kind), l.Shape, strings.Join(l.Inputs, ","), strconv.Itoa(l.Params), role})
		total += l.Params
	}
	table.SetFooter([]string{"", "", "", "", strconv.Itoa(total), ""})
	table.Render()
}

// Scores renders the evaluation results sorted by name.
func Scores(w io.Writer, scores map[string]float64) {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	table := newTable(w, "score", "value")
	for _, k := range keys {
		table.Append([]string{k, coinmath.Format(scores[k], precision)})
	}
	table.Render()
}

// Stats renders the column statistics of the data.
func Stats(w io.Writer, stats []data.Stats) {
	table := newTable(w, "column", "count", "mean", "std", "min", "max")
	for _, s := range stats {
		table.Append([]string{
			s.Column,
			strconv.Itoa(s.Count),
			coinmath.Format(s.Mean, precision),
			coinmath.Format(s.Std, precision),
			coinmath.Format(s.Min, precision),
			coinmath.Format(s.Max, precision),
		})
	}
	table.Render()
}

// History plots the given series of the training history, all of them if none is given.
func History(w io.Writer, history framework.History, keys ...string) error {
	if len(keys) == 0 {
		for k := range history {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	for _, k := range keys {
		values, ok := history[k]
		if !ok || len(values) == 0 {
			return fmt.Errorf("no history for '%s'", k)
		}
		caption := fmt.Sprintf("%s (%d epochs)", k, len(values))
		if trend, err := coinmath.Trend(values); err == nil {
			caption = fmt.Sprintf("%s trend %s", caption, coinmath.Format(trend, precision))
		}
		plot := asciigraph.Plot(values,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption(caption))
		if _, err := fmt.Fprintf(w, "%s\n\n", plot); err != nil {
			return err
		}
	}
	return nil
}
