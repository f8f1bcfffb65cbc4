package trainer

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"mi-pretrain/internal/dataset"
	"mi-pretrain/internal/metrics"
	"mi-pretrain/internal/model"
)

// Classifier is a trainable model that can also be evaluated.
type Classifier interface {
	model.Model
	Predict(x mat.Matrix) []int
	Loss(batch model.Batch) float64
}

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Model         Classifier
	Train         *dataset.Set
	Val           *dataset.Set
	Epochs        int
	BatchSize     int
	EvalBatchSize int
	NumWorkers    int
	LogEvery      int
	Seed          int64
	ShowProgress  bool
}

// EvalResult holds the metrics of one evaluation pass.
type EvalResult struct {
	Accuracy float64
	Loss     float64
}

// Summary reports a finished run.
type Summary struct {
	Steps  int
	Epochs []EvalResult
}

// Run executes the supervised training workload.
func Run(ctx context.Context, cfg RunConfig) (*Summary, error) {
	if cfg.Model == nil {
		return nil, errors.New("trainer: model must be set")
	}
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("trainer: batch size must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	if cfg.EvalBatchSize <= 0 {
		cfg.EvalBatchSize = cfg.BatchSize
	}

	batches, loaderErr, err := dataset.StartLoader(ctx, cfg.Train, dataset.LoaderOptions{
		BatchSize:  cfg.BatchSize,
		Epochs:     cfg.Epochs,
		Shuffle:    true,
		Seed:       cfg.Seed,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return nil, err
	}

	stepsPerEpoch := (cfg.Train.Len() + cfg.BatchSize - 1) / cfg.BatchSize
	var bar *progressbar.ProgressBar
	if cfg.ShowProgress {
		bar = progressbar.NewOptions(stepsPerEpoch*cfg.Epochs,
			progressbar.OptionSetDescription("training"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
		)
		defer bar.Close()
	}

	summary := &Summary{}
	var window metrics.Window
	for {
		startData := time.Now()
		batch, ok, err := nextBatch(ctx, batches, loaderErr)
		if err != nil {
			return summary, err
		}
		if !ok {
			break
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss := cfg.Model.TrainStep(batch.Batch)
		computeTime := time.Since(startCompute)

		window.Record(batch.Size(), dataTime, computeTime, loss)
		summary.Steps++
		if bar != nil {
			_ = bar.Add(1)
		}

		if summary.Steps%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			klog.Infof("epoch=%d step=%d images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f loss=%.4f mean_loss=%.4f",
				batch.Epoch,
				summary.Steps,
				snap.ImagesPerSec,
				snap.AvgDataMS,
				snap.AvgComputeMS,
				snap.LastLoss,
				snap.MeanLoss,
			)
		}

		if batch.LastInEpoch && cfg.Val != nil && cfg.Val.Len() > 0 {
			eval := Evaluate(cfg.Model, cfg.Val, cfg.EvalBatchSize)
			summary.Epochs = append(summary.Epochs, eval)
			klog.Infof("epoch=%d validation accuracy=%.4f loss=%.4f", batch.Epoch, eval.Accuracy, eval.Loss)
		}
	}

	return summary, nil
}

// nextBatch returns the next batch, or ok=false once the loader is exhausted.
func nextBatch(ctx context.Context, batches <-chan dataset.Batch, errs <-chan error) (dataset.Batch, bool, error) {
	select {
	case <-ctx.Done():
		return dataset.Batch{}, false, ctx.Err()
	case batch, ok := <-batches:
		if ok {
			return batch, true, nil
		}
		// The loader closes errs right after batches; drain it to surface a failure.
		for err := range errs {
			if err != nil {
				return dataset.Batch{}, false, err
			}
		}
		if err := ctx.Err(); err != nil {
			return dataset.Batch{}, false, err
		}
		return dataset.Batch{}, false, nil
	}
}

// Evaluate returns accuracy and mean loss of m over set, in batches of batchSize rows.
func Evaluate(m Classifier, set *dataset.Set, batchSize int) EvalResult {
	n := set.Len()
	if n == 0 {
		return EvalResult{}
	}
	if batchSize <= 0 {
		batchSize = n
	}
	correct, lossSum := 0.0, 0.0
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		indices := make([]int, end-start)
		for i := range indices {
			indices[i] = start + i
		}
		batch := set.Batch(indices)
		correct += metrics.Accuracy(m.Predict(batch.Inputs), batch.Labels) * float64(len(indices))
		lossSum += m.Loss(batch) * float64(len(indices))
	}
	return EvalResult{Accuracy: correct / float64(n), Loss: lossSum / float64(n)}
}
