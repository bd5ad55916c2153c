package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/edoakes/tunekit/pkg/tune"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true)
)

// printAnalysis renders the per-trial summary table and the best configuration.
func printAnalysis(out io.Writer, a *tune.Analysis) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return tableHeaderStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers("TRIAL", "STATE", "ITERS", strings.ToUpper(a.Metric), "HPARAMS")
	for i := range a.Trials {
		tr := &a.Trials[i]
		metric := "-"
		if row, ok := tr.BestRow(a.Metric, a.Mode); ok {
			metric = fmt.Sprintf("%.6g", row.Metrics[a.Metric])
		}
		t.Row(tr.Name, string(tr.State), fmt.Sprint(len(tr.Series)), metric,
			compactJSON(tr.Hparams))
	}
	fmt.Fprintln(out, t.Render())

	best, row, err := a.Best(a.Metric, a.Mode)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "best trial: %s (%s %s=%.6g at iteration %d)\n",
		best.Name, a.Mode, a.Metric, row.Metrics[a.Metric], row.Iteration)
	fmt.Fprintf(out, "best config: %s\n", compactJSON(best.Hparams))
}

func compactJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
