// mi-pretrain builds a softmax DeepNN for MNIST, pre-trains its hidden layers with
// mutual-information guided infomax updates, and optionally trains it afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"mi-pretrain/internal/config"
	"mi-pretrain/internal/dataset"
	"mi-pretrain/internal/metrics"
	"mi-pretrain/internal/model"
	"mi-pretrain/internal/mutualinfo"
	"mi-pretrain/internal/pretrain"
	"mi-pretrain/internal/report"
	"mi-pretrain/internal/trainer"
)

var (
	flagConfig         = flag.String("config", "configs/mnist.yaml", "Path to YAML config")
	flagDataDir        = flag.String("data", "", "Override the MNIST data directory")
	flagTrainBatchSize = flag.Int("train-batch-size", 0, "Training batch size")
	flagValBatchSize   = flag.Int("val-batch-size", 0, "Evaluation batch size")
	flagValSplit       = flag.Float64("val-split", 0, "Fraction of the training data held out for validation")
	flagSeed           = flag.Int64("seed", 0, "PRNG seed")
	flagBins           = flag.Int("bins", 0, "Histogram bins of the MI estimator")
	flagMIMaxSamples   = flag.Int("mi-max-samples", 0, "Rows used by the MI estimator, 0 for all")
	flagMIWorkers      = flag.Int("mi-workers", 0, "Neurons scored concurrently by the MI estimator, 0 for GOMAXPROCS")
	flagMaxIters       = flag.Int("max-iterations", 0, "Maximum sweeps over the clusters of a layer")
	flagEpochs         = flag.Int("epochs", 0, "Supervised training epochs after pre-training")
	flagNumWorkers     = flag.Int("num-workers", 0, "Number of data loader workers")
	flagLogEvery       = flag.Int("log-every", 0, "Log every N training steps")
	flagPlotDir        = flag.String("plots", "", "Directory for the per-layer MI charts")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := exceptions.TryCatch[error](func() {
		cfg := must.M1(config.Load(*flagConfig))
		cfg.ApplyOverrides(config.Overrides{
			DataDir:        *flagDataDir,
			TrainBatchSize: *flagTrainBatchSize,
			ValBatchSize:   *flagValBatchSize,
			ValSplit:       *flagValSplit,
			Seed:           *flagSeed,
			Bins:           *flagBins,
			MIMaxSamples:   *flagMIMaxSamples,
			MIWorkers:      *flagMIWorkers,
			MaxIters:       *flagMaxIters,
			Epochs:         *flagEpochs,
			NumWorkers:     *flagNumWorkers,
			LogEvery:       *flagLogEvery,
			PlotDir:        *flagPlotDir,
		})
		must.M(cfg.Validate())
		run(ctx, cfg)
	})
	if err != nil {
		klog.Fatalf("Error:\n%+v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) {
	if cfg.Download {
		must.M(dataset.Download(ctx, cfg.DataDir))
		klog.Infof("Data available in %s", cfg.DataDir)
	}
	full := must.M1(dataset.Load(cfg.DataDir, dataset.SplitTrain))
	test := must.M1(dataset.Load(cfg.DataDir, dataset.SplitTest))
	metrics.MemoryProfile("dataset load")

	rng := rand.New(rand.NewSource(cfg.Seed))
	train, val := must.M2(dataset.RandomSplit(full, cfg.ValSplit, rng))
	klog.Infof("train=%d val=%d test=%d", train.Len(), val.Len(), test.Len())

	net := must.M1(model.NewDeepNN(model.Dims{
		Input:  dataset.Width * dataset.Height,
		Hidden: cfg.Hidden,
		Output: dataset.NumClasses,
	}, cfg.LearningRate, cfg.Seed))
	klog.Infof("DeepNN: %d hidden layers, %d parameters", net.NumHidden(), net.NumParams())

	before := trainer.Evaluate(net, test, cfg.ValBatchSize)
	klog.Infof("test before pre-training: accuracy=%.4f loss=%.4f", before.Accuracy, before.Loss)

	result := must.M1(pretrain.Run(ctx, net, val.Images, pretrain.Options{
		Clusters: cfg.Clusters,
		MI: mutualinfo.Options{
			Bins:       cfg.Bins,
			Workers:    cfg.MIWorkers,
			MaxSamples: cfg.MIMaxSamples,
			Seed:       cfg.Seed,
		},
		BaseStep:     cfg.StepSize,
		MaxSweeps:    cfg.MaxIters,
		Tolerance:    cfg.Tolerance,
		ReestimateMI: cfg.ReestimateMI,
	}))
	metrics.MemoryProfile("pre-training")

	fmt.Println(report.LayerTable(result))
	for _, l := range result.Layers {
		fmt.Printf("\nLayer %d clusters:\n", l.Layer)
		fmt.Println(report.ClusterTable(l))
	}
	if cfg.PlotDir != "" {
		paths := must.M1(report.PlotMI(cfg.PlotDir, result))
		klog.Infof("wrote %d MI charts to %s", len(paths), cfg.PlotDir)
	}

	after := trainer.Evaluate(net, test, cfg.ValBatchSize)
	klog.Infof("test after pre-training: accuracy=%.4f loss=%.4f", after.Accuracy, after.Loss)

	if cfg.Epochs == 0 {
		return
	}
	summary := must.M1(trainer.Run(ctx, trainer.RunConfig{
		Model:         net,
		Train:         train,
		Val:           val,
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.TrainBatchSize,
		EvalBatchSize: cfg.ValBatchSize,
		NumWorkers:    cfg.NumWorkers,
		LogEvery:      cfg.LogEvery,
		Seed:          cfg.Seed,
		ShowProgress:  true,
	}))
	fmt.Println(report.EvalTable(summary))
	final := trainer.Evaluate(net, test, cfg.ValBatchSize)
	klog.Infof("test after %d epochs: accuracy=%.4f loss=%.4f", cfg.Epochs, final.Accuracy, final.Loss)
}
