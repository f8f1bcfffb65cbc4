package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"k8s.io/klog/v2"

	"mi-pretrain/internal/pretrain"
)

// PlotMI writes one PNG per layer into dir showing the neuron MI scores in
// descending order, with a dashed line at every cluster boundary. When the
// scores were estimated again after the updates they are drawn in the same
// neuron order. It returns the written paths.
func PlotMI(dir string, res *pretrain.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create plot dir %s", dir)
	}
	var paths []string
	for _, l := range res.Layers {
		if len(l.MI) == 0 {
			continue
		}
		p, err := layerPlot(l)
		if err != nil {
			return paths, errors.WithMessagef(err, "plot layer %d", l.Layer)
		}
		path := filepath.Join(dir, fmt.Sprintf("layer_%d_mi.png", l.Layer))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, errors.Wrapf(err, "save %s", path)
		}
		klog.V(1).Infof("wrote %s", path)
		paths = append(paths, path)
	}
	return paths, nil
}

func layerPlot(l pretrain.LayerResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Layer %d: %d neurons in %d clusters", l.Layer, l.Neurons, len(l.Clusters))
	p.X.Label.Text = "neuron rank"
	p.Y.Label.Text = "MI (nats)"
	p.Add(plotter.NewGrid())

	order := pretrain.ArgsortDesc(l.MI)
	before, err := plotter.NewLine(rankedPoints(l.MI, order))
	if err != nil {
		return nil, err
	}
	before.Color = plotutil.Color(0)
	before.Width = vg.Points(1.5)
	p.Add(before)
	p.Legend.Add("before", before)

	if l.FinalMI != nil {
		after, err := plotter.NewLine(rankedPoints(l.FinalMI, order))
		if err != nil {
			return nil, err
		}
		after.Color = plotutil.Color(1)
		after.Width = vg.Points(1.5)
		p.Add(after)
		p.Legend.Add("after", after)
	}

	// Cluster boundaries, in rank units.
	lo, hi := yRange(l)
	rank := 0
	for _, members := range l.Clusters[:max(len(l.Clusters)-1, 0)] {
		rank += len(members)
		if len(members) == 0 {
			continue
		}
		x := float64(rank) - 0.5
		boundary, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
		if err != nil {
			return nil, err
		}
		boundary.Color = plotutil.Color(2)
		boundary.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(boundary)
	}
	return p, nil
}

func rankedPoints(scores []float64, order []int) plotter.XYs {
	pts := make(plotter.XYs, len(order))
	for rank, neuron := range order {
		pts[rank].X = float64(rank)
		pts[rank].Y = scores[neuron]
	}
	return pts
}

func yRange(l pretrain.LayerResult) (lo, hi float64) {
	lo, _, hi = summarize(l.MI)
	if l.FinalMI != nil {
		flo, _, fhi := summarize(l.FinalMI)
		lo, hi = min(lo, flo), max(hi, fhi)
	}
	if lo == hi {
		hi = lo + 1
	}
	return lo, hi
}
