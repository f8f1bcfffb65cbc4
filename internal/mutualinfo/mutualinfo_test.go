package mutualinfo

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBin(t *testing.T) {
	codes := Bin([]float64{0, 0.19, 0.2, 0.5, 0.99, 1}, 5, nil)
	assert.Equal(t, []int32{0, 0, 1, 2, 4, 4}, codes)

	// 0.6*5 rounds to exactly 3, but edges[3] is 3*0.2 = 0.6000000000000001.
	codes = Bin([]float64{0, 0.6, 1}, 5, nil)
	assert.Equal(t, []int32{0, 2, 4}, codes)

	codes = Bin([]float64{3, 3, 3}, 5, nil)
	assert.Equal(t, []int32{2, 2, 2}, codes, "constant input goes to the middle bin")
}

func TestEntropy(t *testing.T) {
	assert.InDelta(t, math.Log(4), Entropy([]float64{5, 5, 5, 5}), 1e-12)
	assert.Equal(t, 0.0, Entropy([]float64{0, 7, 0}))
	assert.Equal(t, 0.0, Entropy([]float64{0, 0}))
	// Empty bins are skipped instead of producing NaN.
	assert.InDelta(t, math.Log(2), Entropy([]float64{3, 0, 3, 0, 0}), 1e-12)
}

func TestMutualInformationIdentity(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	// Two samples per bin: H(X) = log 5 and MI(x, x) = H(X).
	assert.InDelta(t, math.Log(5), MutualInformation(x, x, 5), 1e-12)
}

func TestMutualInformationIndependent(t *testing.T) {
	// Every (x, y) bin pair occurs exactly once: X and Y are independent.
	var x, y []float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			x = append(x, float64(i))
			y = append(y, float64(j))
		}
	}
	assert.InDelta(t, 0.0, MutualInformation(x, y, 4), 1e-12)
}

func TestMutualInformationNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := make([]float64, 200)
	y := make([]float64, 200)
	for i := range x {
		x[i] = rng.NormFloat64()
		y[i] = 0.3*x[i] + rng.NormFloat64()
	}
	mi := MutualInformation(x, y, 5)
	assert.Greater(t, mi, 0.0)
	assert.Less(t, mi, math.Log(5))
}

func TestEstimateNeuronMI(t *testing.T) {
	const n = 64
	rng := rand.New(rand.NewSource(1))
	x := mat.NewDense(n, 3, nil)
	a := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		v := rng.Float64()
		x.Set(i, 0, v)
		x.Set(i, 1, 0.5) // constant column: skipped, contributes nothing
		x.Set(i, 2, rng.Float64())
		a.Set(i, 0, 1/(1+math.Exp(-4*v))) // monotone in x[:,0]
		a.Set(i, 1, 0.25)                 // dead neuron
		a.Set(i, 2, rng.Float64())
	}

	scores, err := EstimateNeuronMI(context.Background(), x, a, Options{Bins: 5, Workers: 2})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, 0.0, scores[1])
	assert.Greater(t, scores[0], scores[2])

	col0 := mat.Col(nil, 0, x)
	col2 := mat.Col(nil, 2, x)
	act0 := mat.Col(nil, 0, a)
	want := MutualInformation(col0, act0, 5) + MutualInformation(col2, act0, 5)
	assert.InDelta(t, want, scores[0], 1e-12)
}

func TestEstimateNeuronMISubsampleAndErrors(t *testing.T) {
	x := mat.NewDense(10, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	scores, err := EstimateNeuronMI(context.Background(), x, x, Options{Bins: 5, MaxSamples: 6, Seed: 3})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Greater(t, scores[0], 0.0)

	_, err = EstimateNeuronMI(context.Background(), x, mat.NewDense(3, 1, nil), Options{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EstimateNeuronMI(ctx, x, x, Options{})
	assert.Error(t, err)
}

func TestSampleRows(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, sampleRows(3, 0, 1))
	rows := sampleRows(100, 10, 1)
	require.Len(t, rows, 10)
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1], rows[i])
	}
}
