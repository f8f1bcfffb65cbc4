// Package pretrain adjusts the hidden layers of a DeepNN before supervised training.
//
// Each hidden layer is visited in order. Its neurons are scored by the mutual
// information between the layer input and their sigmoid activation, sorted,
// and split into clusters. Every cluster is then moved along the infomax
// gradient with a step that grows as the cluster's MI rank drops. Updates
// repeat until the objective settles or the iteration budget runs out.
package pretrain

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"mi-pretrain/internal/model"
	"mi-pretrain/internal/mutualinfo"
)

// DefaultClusters is the number of clusters for each hidden layer of model.MNISTDims.
var DefaultClusters = []int{10, 8, 5, 3, 2}

// Options configures Run.
type Options struct {
	// Clusters holds the cluster count of each hidden layer.
	Clusters []int
	MI       mutualinfo.Options
	// BaseStep is the step of the least informative cluster.
	BaseStep float64
	// MaxSweeps bounds the passes over all clusters of a layer.
	MaxSweeps int
	// Tolerance stops a layer once the objective moves less than this between sweeps.
	Tolerance float64
	// ReestimateMI scores the neurons again after the updates.
	ReestimateMI bool
}

// LayerResult describes what happened to one hidden layer.
type LayerResult struct {
	Layer    int
	Neurons  int
	Inputs   int
	MI       []float64
	Clusters [][]int
	BinAvg   []float64

	// BaseStep is the step of the last cluster. Cluster c moved by StepSize(c, len(Clusters), BaseStep).
	BaseStep float64

	// Iterations counts cluster updates, Sweeps full passes over the clusters.
	Iterations int
	Sweeps     int
	// Objective holds the infomax objective before the first sweep and after each one.
	Objective []float64
	// FinalMI is only set with Options.ReestimateMI.
	FinalMI []float64

	EstimateTime time.Duration
	Elapsed      time.Duration
}

// Result gathers the per-layer outcomes of Run.
type Result struct {
	Layers []LayerResult
}

// Run pre-trains every hidden layer of net on the examples in x, one per row.
// Layers are updated in place. Layer l sees x propagated through the already
// updated layers before it.
func Run(ctx context.Context, net *model.DeepNN, x mat.Matrix, opts Options) (*Result, error) {
	if len(opts.Clusters) != net.NumHidden() {
		return nil, errors.Errorf("pretrain: %d cluster counts for %d hidden layers", len(opts.Clusters), net.NumHidden())
	}
	result := &Result{}
	for l := 0; l < net.NumHidden(); l++ {
		klog.Infof("Working on layer: %d", l)
		input := net.HiddenInput(l, x)
		layerResult, err := Layer(ctx, net.Layer(l), input, opts.Clusters[l], opts)
		if err != nil {
			return result, errors.WithMessagef(err, "pretrain layer %d", l)
		}
		layerResult.Layer = l
		result.Layers = append(result.Layers, layerResult)
	}
	return result, nil
}

// Layer pre-trains a single layer given its input and writes the new parameters back to it.
func Layer(ctx context.Context, layer *model.Linear, input mat.Matrix, k int, opts Options) (LayerResult, error) {
	tic := time.Now()
	res := LayerResult{Neurons: layer.Out(), Inputs: layer.In(), BaseStep: opts.BaseStep}
	if k <= 0 {
		return res, errors.Errorf("cluster count must be > 0 (got %d)", k)
	}
	if _, c := input.Dims(); c != layer.In() {
		return res, errors.Errorf("input has %d columns, layer expects %d", c, layer.In())
	}

	w := mat.DenseCopyOf(layer.W)
	b := mat.VecDenseCopyOf(layer.B)
	activation := Activation(input, w, b)

	klog.Info("Estimating information theoretic quantities")
	ticEst := time.Now()
	scores, err := mutualinfo.EstimateNeuronMI(ctx, input, activation, opts.MI)
	if err != nil {
		return res, err
	}
	res.EstimateTime = time.Since(ticEst)
	klog.Infof("Elapsed time for estimation: %.1f seconds", res.EstimateTime.Seconds())

	res.MI = scores
	res.Clusters = ArraySplit(ArgsortDesc(scores), k)
	res.BinAvg = BinAverages(scores, res.Clusters)

	perSweep := 0
	for _, cluster := range res.Clusters {
		if len(cluster) > 0 {
			perSweep++
		}
	}

	objective := Objective(activation, w)
	res.Objective = append(res.Objective, objective)
	for !stoppingCriterion(res.Iterations, perSweep, opts, res.Objective) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for c, cluster := range res.Clusters {
			if len(cluster) == 0 {
				continue
			}
			step := StepSize(c, k, opts.BaseStep)
			costW, costB := CostFunction(input, activation, w, cluster)
			applyUpdate(w, b, cluster, step, costW, costB)
			res.Iterations++
		}
		res.Sweeps++

		activation = Activation(input, w, b)
		objective = Objective(activation, w)
		res.Objective = append(res.Objective, objective)
		klog.V(1).Infof("sweep %d: objective %.6f", res.Sweeps, objective)
	}

	layer.Set(w, b)

	if opts.ReestimateMI && res.Sweeps > 0 {
		res.FinalMI, err = mutualinfo.EstimateNeuronMI(ctx, input, activation, opts.MI)
		if err != nil {
			return res, err
		}
	}
	res.Elapsed = time.Since(tic)
	return res, nil
}

// stoppingCriterion reports whether the update loop of a layer is done. Each sweep adds
// perSweep iterations, one per non-empty cluster, so the budget is MaxSweeps·perSweep.
func stoppingCriterion(iterations, perSweep int, opts Options, objective []float64) bool {
	if iterations >= opts.MaxSweeps*perSweep || opts.BaseStep == 0 {
		return true
	}
	if n := len(objective); n >= 2 && math.Abs(objective[n-1]-objective[n-2]) < opts.Tolerance {
		return true
	}
	return false
}
