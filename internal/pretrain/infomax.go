package pretrain

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"mi-pretrain/internal/model"
)

// minDerivative bounds y(1-y) away from zero inside the log of the objective.
const minDerivative = 1e-12

// Activation returns sigmoid(x·wᵀ + b).
func Activation(x mat.Matrix, w *mat.Dense, b *mat.VecDense) *mat.Dense {
	a := model.Affine(x, w, b)
	a.Apply(func(_, _ int, v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	}, a)
	return a
}

// StepSize returns the step of cluster c out of k: base·(c+1)/k.
// Cluster 0 holds the most informative neurons and moves the least.
func StepSize(c, k int, base float64) float64 {
	return base * float64(c+1) / float64(k)
}

// Objective is the mean over neurons of the per-unit infomax objective
// E[log y(1-y)] + log‖w‖, where y are the sigmoid activations in a.
func Objective(a *mat.Dense, w *mat.Dense) float64 {
	n, neurons := a.Dims()
	if n == 0 || neurons == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		for _, y := range a.RawRowView(i) {
			total += math.Log(math.Max(y*(1-y), minDerivative))
		}
	}
	total /= float64(n)
	for j := 0; j < neurons; j++ {
		if norm := floats.Norm(w.RawRowView(j), 2); norm > 0 {
			total += math.Log(norm)
		}
	}
	return total / float64(neurons)
}

// CostFunction returns, for the neurons in cluster, the negated gradient of the infomax
// objective: costW[i] = -(E[(1-2y)x] + w/‖w‖²) and costB[i] = -E[1-2y].
// Subtracting step·cost from the weights therefore climbs the objective.
func CostFunction(x mat.Matrix, a *mat.Dense, w *mat.Dense, cluster []int) (*mat.Dense, []float64) {
	n, in := x.Dims()
	costW := mat.NewDense(len(cluster), in, nil)
	costB := make([]float64, len(cluster))
	if n == 0 {
		return costW, costB
	}

	// delta[:, i] = 1 - 2·y for the cluster's neurons.
	delta := mat.NewDense(n, len(cluster), nil)
	for r := 0; r < n; r++ {
		row := delta.RawRowView(r)
		for i, neuron := range cluster {
			row[i] = 1 - 2*a.At(r, neuron)
		}
	}
	costW.Mul(delta.T(), x)
	costW.Scale(-1/float64(n), costW)

	for i, neuron := range cluster {
		costB[i] = -floats.Sum(mat.Col(nil, i, delta)) / float64(n)
		wRow := w.RawRowView(neuron)
		normSq := floats.Dot(wRow, wRow)
		if normSq == 0 {
			continue
		}
		floats.AddScaled(costW.RawRowView(i), -1/normSq, wRow)
	}
	return costW, costB
}

// applyUpdate subtracts step·cost from the rows of w and entries of b listed in cluster.
func applyUpdate(w *mat.Dense, b *mat.VecDense, cluster []int, step float64, costW *mat.Dense, costB []float64) {
	for i, neuron := range cluster {
		floats.AddScaled(w.RawRowView(neuron), -step, costW.RawRowView(i))
		b.SetVec(neuron, b.AtVec(neuron)-step*costB[i])
	}
}
