package dataset

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"mi-pretrain/internal/model"
)

// LoaderOptions configures the batch pipeline.
type LoaderOptions struct {
	BatchSize  int
	Epochs     int
	Shuffle    bool
	Seed       int64
	NumWorkers int
}

// Batch is a model.Batch tagged with its position in the stream.
type Batch struct {
	model.Batch
	Epoch int
	Index int
	// LastInEpoch marks the final batch of an epoch.
	LastInEpoch bool
}

// StartLoader launches a pipeline yielding batches of set for opts.Epochs epochs.
// Batches are assembled by opts.NumWorkers goroutines and emitted in order, so the
// stream is deterministic for a given seed. Both channels are closed when the
// stream ends or ctx is cancelled.
func StartLoader(parent context.Context, set *Set, opts LoaderOptions) (<-chan Batch, <-chan error, error) {
	if set == nil || set.Len() == 0 {
		return nil, nil, errors.New("loader: empty dataset")
	}
	if opts.BatchSize <= 0 {
		return nil, nil, errors.Errorf("loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 1
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}

	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan batchJob, opts.NumWorkers)
	results := make(chan batchResult, opts.NumWorkers)
	out := make(chan Batch, opts.NumWorkers)
	errCh := make(chan error, 1)

	var rng *rand.Rand
	if opts.Shuffle {
		rng = rand.New(rand.NewSource(opts.Seed))
	}

	go produceJobs(ctx, jobs, set.Len(), opts, rng)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, set, jobs, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		runAggregator(ctx, results, out, errCh)
	}()

	return out, errCh, nil
}

type batchJob struct {
	id      int
	epoch   int
	index   int
	last    bool
	indices []int
}

type batchResult struct {
	job   batchJob
	batch model.Batch
	err   error
}

func produceJobs(ctx context.Context, jobs chan<- batchJob, n int, opts LoaderOptions, rng *rand.Rand) {
	defer close(jobs)
	id := 0
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		order := epochOrder(n, rng)
		for index, start := 0, 0; start < n; index, start = index+1, start+opts.BatchSize {
			end := min(start+opts.BatchSize, n)
			job := batchJob{id: id, epoch: epoch, index: index, last: end == n, indices: order[start:end]}
			select {
			case <-ctx.Done():
				return
			case jobs <- job:
				id++
			}
		}
	}
}

// epochOrder returns the visiting order of one epoch: a permutation when rng is set.
func epochOrder(n int, rng *rand.Rand) []int {
	if rng != nil {
		return rng.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func worker(ctx context.Context, set *Set, jobs <-chan batchJob, results chan<- batchResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res := batchResult{job: job}
			res.batch = set.Batch(job.indices)
			for _, label := range res.batch.Labels {
				if label < 0 || label >= NumClasses {
					res.err = errors.Errorf("loader: %s has label %d outside [0, %d)", set.Name, label, NumClasses)
					break
				}
			}
			select {
			case <-ctx.Done():
				return
			case results <- res:
			}
		}
	}
}

func runAggregator(ctx context.Context, results <-chan batchResult, out chan<- Batch, errCh chan<- error) {
	pending := make(map[int]batchResult)
	nextID := 0
	for {
		res, ok := pending[nextID]
		if !ok {
			select {
			case <-ctx.Done():
				return
			case res, ok = <-results:
				if !ok {
					return
				}
				pending[res.job.id] = res
			}
			continue
		}
		delete(pending, nextID)
		nextID++

		if res.err != nil {
			errCh <- res.err
			return
		}
		batch := Batch{Batch: res.batch, Epoch: res.job.epoch, Index: res.job.index, LastInEpoch: res.job.last}
		select {
		case <-ctx.Done():
			return
		case out <- batch:
		}
	}
}
