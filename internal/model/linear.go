package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a fully-connected layer computing x·Wᵀ + b.
// W is shaped [out, in], so row i holds the incoming weights of neuron i.
type Linear struct {
	W *mat.Dense
	B *mat.VecDense
}

// NewLinear initialises weights and bias uniformly in ±1/sqrt(in).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, out*in)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (rng.Float64()*2 - 1) * bound
	}
	return &Linear{
		W: mat.NewDense(out, in, w),
		B: mat.NewVecDense(out, b),
	}
}

// In returns the input width.
func (l *Linear) In() int {
	_, c := l.W.Dims()
	return c
}

// Out returns the number of neurons.
func (l *Linear) Out() int {
	r, _ := l.W.Dims()
	return r
}

// Forward returns the pre-activations for the rows of x.
func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	return Affine(x, l.W, l.B)
}

// Clone returns a deep copy of the layer.
func (l *Linear) Clone() *Linear {
	return &Linear{
		W: mat.DenseCopyOf(l.W),
		B: mat.VecDenseCopyOf(l.B),
	}
}

// Set replaces the layer parameters with copies of w and b.
func (l *Linear) Set(w *mat.Dense, b *mat.VecDense) {
	l.W.Copy(w)
	l.B.CopyVec(b)
}

// Affine computes x·wᵀ + b, broadcasting b over rows.
func Affine(x mat.Matrix, w *mat.Dense, b *mat.VecDense) *mat.Dense {
	var z mat.Dense
	z.Mul(x, w.T())
	z.Apply(func(_, j int, v float64) float64 {
		return v + b.AtVec(j)
	}, &z)
	return &z
}
