package mutualinfo

import (
	"context"
	"math/rand"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Options configures EstimateNeuronMI.
type Options struct {
	// Bins per axis of every histogram. Defaults to 5.
	Bins int
	// Workers bounds the neurons scored concurrently. Defaults to GOMAXPROCS.
	Workers int
	// MaxSamples, if > 0, scores a seeded random subset of at most that many rows.
	MaxSamples int
	Seed       int64
	// LogEvery neurons a progress line is logged at verbosity 1. Defaults to 100.
	LogEvery int
}

// EstimateNeuronMI scores each neuron j as the sum over input dimensions d of
// MI(x[:, d], a[:, j]). x holds the layer inputs and a the neuron activations,
// one example per row in both.
func EstimateNeuronMI(ctx context.Context, x, a mat.Matrix, opts Options) ([]float64, error) {
	if opts.Bins <= 0 {
		opts.Bins = 5
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 100
	}
	n, dims := x.Dims()
	an, neurons := a.Dims()
	if n != an {
		return nil, errors.Errorf("mutualinfo: %d input rows but %d activation rows", n, an)
	}
	if n == 0 {
		return nil, errors.New("mutualinfo: no samples")
	}
	rows := sampleRows(n, opts.MaxSamples, opts.Seed)

	tic := time.Now()
	// Input columns are binned once; the ones with zero entropy carry no information.
	type column struct {
		codes   []int32
		entropy float64
	}
	var inputs []column
	values := make([]float64, len(rows))
	for d := 0; d < dims; d++ {
		gather(values, x, rows, d)
		codes := Bin(values, opts.Bins, nil)
		h := Entropy(Histogram(codes, opts.Bins))
		if h > 0 {
			inputs = append(inputs, column{codes: codes, entropy: h})
		}
	}
	klog.V(1).Infof("mutualinfo: %d samples, %d/%d informative input dims, %d neurons",
		len(rows), len(inputs), dims, neurons)

	scores := make([]float64, neurons)
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for j := 0; j < neurons; j++ {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			y := make([]float64, len(rows))
			gather(y, a, rows, j)
			yCodes := Bin(y, opts.Bins, nil)
			hy := Entropy(Histogram(yCodes, opts.Bins))

			var joint []float64
			sum := 0.0
			if hy > 0 {
				for _, in := range inputs {
					joint = Histogram2D(in.codes, yCodes, opts.Bins, joint)
					sum += in.entropy + hy - Entropy(joint)
				}
			}
			scores[j] = sum
			klog.V(2).Infof("mutualinfo: neuron %d: %.6f", j, sum)

			if count := done.Add(1); count%int64(opts.LogEvery) == 0 {
				klog.V(1).Infof("mutualinfo: scored %d/%d neurons (%s)", count, neurons, time.Since(tic).Round(time.Millisecond))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.WithMessage(err, "mutualinfo: estimation interrupted")
	}
	return scores, nil
}

// sampleRows returns the sorted row indices to score.
func sampleRows(n, maxSamples int, seed int64) []int {
	if maxSamples <= 0 || maxSamples >= n {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	rows := rand.New(rand.NewSource(seed)).Perm(n)[:maxSamples]
	sort.Ints(rows)
	return rows
}

func gather(dst []float64, m mat.Matrix, rows []int, col int) {
	for i, r := range rows {
		dst[i] = m.At(r, col)
	}
}
