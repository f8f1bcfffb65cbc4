package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dims describes the widths of a DeepNN.
type Dims struct {
	Input  int
	Hidden []int
	Output int
}

// MNISTDims is the reference network: 784 -> 1024 -> 120 -> 20 -> 20 -> 20 -> 10.
var MNISTDims = Dims{Input: 784, Hidden: []int{1024, 120, 20, 20, 20}, Output: 10}

// DeepNN is a stack of Linear layers, each followed by a softmax over the feature axis.
// The network output applies one more softmax on top of the last layer's softmax.
type DeepNN struct {
	layers []*Linear
	lr     float64

	// acts[0] is the input, acts[i+1] = softmax(layers[i](acts[i])).
	acts  []*mat.Dense
	probs *mat.Dense
}

// NewDeepNN constructs the network with seeded random initialization.
func NewDeepNN(dims Dims, lr float64, seed int64) (*DeepNN, error) {
	if dims.Input <= 0 || dims.Output <= 0 {
		return nil, errors.Errorf("model: input and output sizes must be > 0 (got %d, %d)", dims.Input, dims.Output)
	}
	rng := rand.New(rand.NewSource(seed))
	widths := append([]int{dims.Input}, dims.Hidden...)
	widths = append(widths, dims.Output)
	net := &DeepNN{lr: lr}
	for i := 0; i+1 < len(widths); i++ {
		if widths[i+1] <= 0 {
			return nil, errors.Errorf("model: layer %d has width %d", i, widths[i+1])
		}
		net.layers = append(net.layers, NewLinear(widths[i], widths[i+1], rng))
	}
	return net, nil
}

// Layers returns all layers, output layer last.
func (n *DeepNN) Layers() []*Linear { return n.layers }

// NumHidden is the number of layers that feed another layer.
func (n *DeepNN) NumHidden() int { return len(n.layers) - 1 }

// Layer returns layer i.
func (n *DeepNN) Layer(i int) *Linear { return n.layers[i] }

// SetLearningRate changes the SGD step used by TrainStep.
func (n *DeepNN) SetLearningRate(lr float64) { n.lr = lr }

// NumParams counts weights and biases.
func (n *DeepNN) NumParams() int {
	total := 0
	for _, l := range n.layers {
		total += l.In()*l.Out() + l.Out()
	}
	return total
}

// Forward returns class probabilities for the rows of x.
func (n *DeepNN) Forward(x mat.Matrix) *mat.Dense {
	n.acts = n.acts[:0]
	n.acts = append(n.acts, mat.DenseCopyOf(x))
	for _, l := range n.layers {
		z := l.Forward(n.acts[len(n.acts)-1])
		SoftmaxRows(z)
		n.acts = append(n.acts, z)
	}
	n.probs = mat.DenseCopyOf(n.acts[len(n.acts)-1])
	SoftmaxRows(n.probs)
	return n.probs
}

// HiddenInput returns what layer l receives when the network is fed x.
func (n *DeepNN) HiddenInput(l int, x mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(x)
	for i := 0; i < l; i++ {
		out = n.layers[i].Forward(out)
		SoftmaxRows(out)
	}
	return out
}

// Predict returns the argmax class per row.
func (n *DeepNN) Predict(x mat.Matrix) []int {
	probs := n.Forward(x)
	r, _ := probs.Dims()
	preds := make([]int, r)
	for i := 0; i < r; i++ {
		preds[i] = floats.MaxIdx(probs.RawRowView(i))
	}
	return preds
}

// Loss returns the mean cross-entropy of the network on the batch.
func (n *DeepNN) Loss(batch Batch) float64 {
	return crossEntropy(n.Forward(batch.Inputs), batch.Labels)
}

// TrainStep executes one SGD step and returns the loss before the update.
func (n *DeepNN) TrainStep(batch Batch) float64 {
	if batch.Size() == 0 {
		return 0
	}
	loss, gradW, gradB := n.gradients(batch)
	for i, l := range n.layers {
		l.W.Sub(l.W, scaled(n.lr, gradW[i]))
		l.B.AddScaledVec(l.B, -n.lr, gradB[i])
	}
	return loss
}

// gradients runs forward and backward passes and returns dLoss/dW and dLoss/db per layer.
func (n *DeepNN) gradients(batch Batch) (float64, []*mat.Dense, []*mat.VecDense) {
	probs := n.Forward(batch.Inputs)
	loss := crossEntropy(probs, batch.Labels)
	rows, _ := probs.Dims()

	// Softmax followed by cross-entropy: the gradient w.r.t. the softmax input is (p - onehot)/N.
	grad := mat.DenseCopyOf(probs)
	for i := 0; i < rows; i++ {
		grad.Set(i, batch.Labels[i], grad.At(i, batch.Labels[i])-1)
	}
	grad.Scale(1/float64(rows), grad)

	gradW := make([]*mat.Dense, len(n.layers))
	gradB := make([]*mat.VecDense, len(n.layers))
	for i := len(n.layers) - 1; i >= 0; i-- {
		dz := softmaxBackward(n.acts[i+1], grad)

		var dw mat.Dense
		dw.Mul(dz.T(), n.acts[i])
		gradW[i] = &dw

		_, out := dz.Dims()
		db := mat.NewVecDense(out, nil)
		for j := 0; j < out; j++ {
			db.SetVec(j, floats.Sum(mat.Col(nil, j, dz)))
		}
		gradB[i] = db

		if i > 0 {
			var prev mat.Dense
			prev.Mul(dz, n.layers[i].W)
			grad = &prev
		}
	}
	return loss, gradW, gradB
}

// softmaxBackward maps the gradient w.r.t. s = softmax(z) to the gradient w.r.t. z:
// dz = s ⊙ (g - <g, s>) row by row.
func softmaxBackward(s, g *mat.Dense) *mat.Dense {
	r, c := s.Dims()
	dz := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		sRow, gRow := s.RawRowView(i), g.RawRowView(i)
		dot := floats.Dot(sRow, gRow)
		out := dz.RawRowView(i)
		for j := range out {
			out[j] = sRow[j] * (gRow[j] - dot)
		}
	}
	return dz
}

// SoftmaxRows replaces each row of m with its softmax, in place.
func SoftmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		softmax(m.RawRowView(i))
	}
}

func softmax(logits []float64) {
	maxLogit := floats.Max(logits)
	sum := 0.0
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		logits[i] = exp
		sum += exp
	}
	floats.Scale(1/sum, logits)
}

func crossEntropy(probs *mat.Dense, labels []int) float64 {
	r, _ := probs.Dims()
	if r == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < r; i++ {
		total += -math.Log(math.Max(probs.At(i, labels[i]), 1e-12))
	}
	return total / float64(r)
}

func scaled(f float64, m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}
