package model

import "gonum.org/v1/gonum/mat"

// Batch represents a minibatch of flattened images and their labels.
// Inputs holds one example per row.
type Batch struct {
	Inputs *mat.Dense
	Labels []int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	if b.Inputs == nil {
		return 0
	}
	r, _ := b.Inputs.Dims()
	return r
}

// Model defines the minimal training functionality required by the trainer.
type Model interface {
	TrainStep(batch Batch) float64
}
