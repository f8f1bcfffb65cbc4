package trainer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mi-pretrain/internal/dataset"
	"mi-pretrain/internal/model"
)

// twoClassSet puts label i%2 on row i, with the label encoded in the first feature.
func twoClassSet(n int) *dataset.Set {
	data := make([]float64, 0, n*3)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = i % 2
		data = append(data, float64(labels[i]), 0.5, float64(i%5)/5)
	}
	return &dataset.Set{Name: "two-class", Images: mat.NewDense(n, 3, data), Labels: labels}
}

// constantClassifier always predicts the same class and counts training steps.
type constantClassifier struct {
	class int
	steps int
}

func (c *constantClassifier) TrainStep(model.Batch) float64 { c.steps++; return 1 }
func (c *constantClassifier) Loss(model.Batch) float64      { return 0.5 }
func (c *constantClassifier) Predict(x mat.Matrix) []int {
	r, _ := x.Dims()
	preds := make([]int, r)
	for i := range preds {
		preds[i] = c.class
	}
	return preds
}

func TestRunCountsStepsAndEvaluatesEachEpoch(t *testing.T) {
	clf := &constantClassifier{class: 1}
	summary, err := Run(context.Background(), RunConfig{
		Model:      clf,
		Train:      twoClassSet(10),
		Val:        twoClassSet(6),
		Epochs:     3,
		BatchSize:  4,
		NumWorkers: 2,
		LogEvery:   2,
		Seed:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Steps)
	assert.Equal(t, 9, clf.steps)
	require.Len(t, summary.Epochs, 3)
	for _, e := range summary.Epochs {
		assert.Equal(t, 0.5, e.Accuracy)
		assert.Equal(t, 0.5, e.Loss)
	}
}

func TestRunTrainsDeepNN(t *testing.T) {
	net, err := model.NewDeepNN(model.Dims{Input: 3, Hidden: []int{4}, Output: 2}, 2.0, 1)
	require.NoError(t, err)
	train := twoClassSet(40)
	before := Evaluate(net, train, 0)

	_, err = Run(context.Background(), RunConfig{
		Model:     net,
		Train:     train,
		Epochs:    20,
		BatchSize: 8,
		Seed:      3,
	})
	require.NoError(t, err)
	after := Evaluate(net, train, 16)
	assert.Less(t, after.Loss, before.Loss)
}

func TestRunValidation(t *testing.T) {
	_, err := Run(context.Background(), RunConfig{Train: twoClassSet(2), Epochs: 1, BatchSize: 1})
	assert.Error(t, err)
	_, err = Run(context.Background(), RunConfig{Model: &constantClassifier{}, Train: twoClassSet(2), BatchSize: 1})
	assert.Error(t, err)
	_, err = Run(context.Background(), RunConfig{Model: &constantClassifier{}, Train: twoClassSet(2), Epochs: 1})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, RunConfig{Model: &constantClassifier{}, Train: twoClassSet(100), Epochs: 50, BatchSize: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateBatches(t *testing.T) {
	set := twoClassSet(7)
	full := Evaluate(&constantClassifier{class: 0}, set, 0)
	batched := Evaluate(&constantClassifier{class: 0}, set, 3)
	assert.InDelta(t, 4.0/7, full.Accuracy, 1e-12)
	assert.InDelta(t, full.Accuracy, batched.Accuracy, 1e-12)
	assert.Equal(t, EvalResult{}, Evaluate(&constantClassifier{}, &dataset.Set{}, 3))
}
