// Package report renders pre-training results as terminal tables and PNG charts.
package report

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mi-pretrain/internal/pretrain"
	"mi-pretrain/internal/trainer"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			Padding(0, 2, 0, 2)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			Padding(0, 2, 0, 2)
)

func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row == lgtable.HeaderRow:
				return headerRowStyle
			case row%2 == 0:
				s = evenRowStyle
			default:
				s = oddRowStyle
			}
			if col == 0 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		})
}

// LayerTable summarizes every pre-trained layer, one row each.
func LayerTable(res *pretrain.Result) string {
	table := newTable().Headers("Layer", "Neurons", "k", "MI min", "MI mean", "MI max", "Sweeps", "Objective", "Time")
	for _, l := range res.Layers {
		minMI, meanMI, maxMI := summarize(l.MI)
		objective := "-"
		if n := len(l.Objective); n > 0 {
			objective = fmt.Sprintf("%.4f → %.4f", l.Objective[0], l.Objective[n-1])
		}
		table.Row(
			fmt.Sprintf("%d", l.Layer),
			humanize.Comma(int64(l.Neurons)),
			fmt.Sprintf("%d", len(l.Clusters)),
			fmt.Sprintf("%.4f", minMI),
			fmt.Sprintf("%.4f", meanMI),
			fmt.Sprintf("%.4f", maxMI),
			fmt.Sprintf("%d", l.Sweeps),
			objective,
			l.Elapsed.Round(time.Millisecond).String(),
		)
	}
	return table.Render()
}

// ClusterTable lists the clusters of one layer with their size and average MI.
func ClusterTable(l pretrain.LayerResult) string {
	withFinal := l.FinalMI != nil
	headers := []string{"Cluster", "Size", "Avg MI", "Step"}
	var finalAvg []float64
	if withFinal {
		headers = append(headers, "Avg MI after")
		finalAvg = pretrain.BinAverages(l.FinalMI, l.Clusters)
	}
	table := newTable().Headers(headers...)
	for c, members := range l.Clusters {
		row := []string{
			fmt.Sprintf("%d", c),
			fmt.Sprintf("%d", len(members)),
			fmt.Sprintf("%.4f", l.BinAvg[c]),
			fmt.Sprintf("%.4f", pretrain.StepSize(c, len(l.Clusters), l.BaseStep)),
		}
		if withFinal {
			row = append(row, fmt.Sprintf("%.4f", finalAvg[c]))
		}
		table.Row(row...)
	}
	return table.Render()
}

// EvalTable shows the validation metrics after each training epoch.
func EvalTable(summary *trainer.Summary) string {
	table := newTable().Headers("Epoch", "Accuracy", "Loss")
	for e, r := range summary.Epochs {
		table.Row(fmt.Sprintf("%d", e), fmt.Sprintf("%.2f%%", 100*r.Accuracy), fmt.Sprintf("%.4f", r.Loss))
	}
	return table.Render()
}

func summarize(scores []float64) (minV, meanV, maxV float64) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	return floats.Min(scores), stat.Mean(scores, nil), floats.Max(scores)
}
