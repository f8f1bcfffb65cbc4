package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a pre-training run.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	Download bool   `yaml:"download"`

	TrainBatchSize int     `yaml:"train_batch_size"`
	ValBatchSize   int     `yaml:"val_batch_size"`
	ValSplit       float64 `yaml:"val_split"`
	Seed           int64   `yaml:"seed"`

	Hidden   []int `yaml:"hidden"`
	Clusters []int `yaml:"clusters"`

	Bins         int     `yaml:"bins"`
	MIMaxSamples int     `yaml:"mi_max_samples"`
	MIWorkers    int     `yaml:"mi_workers"`
	StepSize     float64 `yaml:"step_size"`
	MaxIters     int     `yaml:"max_iterations"`
	Tolerance    float64 `yaml:"tolerance"`
	ReestimateMI bool    `yaml:"reestimate_mi"`

	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	NumWorkers   int     `yaml:"num_workers"`
	LogEvery     int     `yaml:"log_every"`
	PlotDir      string  `yaml:"plot_dir"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir        string
	TrainBatchSize int
	ValBatchSize   int
	ValSplit       float64
	Seed           int64
	Bins           int
	MIMaxSamples   int
	MIWorkers      int
	MaxIters       int
	Epochs         int
	NumWorkers     int
	LogEvery       int
	PlotDir        string
}

// Default returns the configuration of the reference MNIST experiment.
func Default() *Config {
	return &Config{
		DataDir:        "~/tmp/mnist",
		Download:       true,
		TrainBatchSize: 4800,
		ValBatchSize:   12000,
		ValSplit:       0.2,
		Seed:           42,
		Hidden:         []int{1024, 120, 20, 20, 20},
		Clusters:       []int{10, 8, 5, 3, 2},
		Bins:           5,
		StepSize:       0.05,
		MaxIters:       20,
		Tolerance:      1e-4,
		LearningRate:   0.5,
		NumWorkers:     4,
		LogEvery:       5,
	}
}

// Load reads a Config from YAML on top of Default and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %q", path)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %q", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.TrainBatchSize > 0 {
		c.TrainBatchSize = o.TrainBatchSize
	}
	if o.ValBatchSize > 0 {
		c.ValBatchSize = o.ValBatchSize
	}
	if o.ValSplit > 0 {
		c.ValSplit = o.ValSplit
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Bins > 0 {
		c.Bins = o.Bins
	}
	if o.MIMaxSamples > 0 {
		c.MIMaxSamples = o.MIMaxSamples
	}
	if o.MIWorkers > 0 {
		c.MIWorkers = o.MIWorkers
	}
	if o.MaxIters > 0 {
		c.MaxIters = o.MaxIters
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.PlotDir != "" {
		c.PlotDir = o.PlotDir
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.TrainBatchSize <= 0 {
		return errors.Errorf("train_batch_size must be > 0 (got %d)", c.TrainBatchSize)
	}
	if c.ValBatchSize <= 0 {
		return errors.Errorf("val_batch_size must be > 0 (got %d)", c.ValBatchSize)
	}
	if c.ValSplit <= 0 || c.ValSplit >= 1 {
		return errors.Errorf("val_split must be in (0, 1) (got %g)", c.ValSplit)
	}
	if len(c.Hidden) == 0 {
		return errors.New("hidden must list at least one layer size")
	}
	for i, h := range c.Hidden {
		if h <= 0 {
			return errors.Errorf("hidden[%d] must be > 0 (got %d)", i, h)
		}
	}
	if len(c.Clusters) != len(c.Hidden) {
		return errors.Errorf("clusters has %d entries, want one per hidden layer (%d)", len(c.Clusters), len(c.Hidden))
	}
	for i, k := range c.Clusters {
		if k <= 0 {
			return errors.Errorf("clusters[%d] must be > 0 (got %d)", i, k)
		}
	}
	if c.Bins < 2 {
		return errors.Errorf("bins must be >= 2 (got %d)", c.Bins)
	}
	if c.MIMaxSamples < 0 {
		return errors.Errorf("mi_max_samples must be >= 0 (got %d)", c.MIMaxSamples)
	}
	if c.MIWorkers < 0 {
		return errors.Errorf("mi_workers must be >= 0 (got %d)", c.MIWorkers)
	}
	if c.StepSize < 0 {
		return errors.Errorf("step_size must be >= 0 (got %g)", c.StepSize)
	}
	if c.MaxIters < 0 {
		return errors.Errorf("max_iterations must be >= 0 (got %d)", c.MaxIters)
	}
	if c.Tolerance < 0 {
		return errors.Errorf("tolerance must be >= 0 (got %g)", c.Tolerance)
	}
	if c.Epochs < 0 {
		return errors.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if c.Epochs > 0 && c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 when training (got %g)", c.LearningRate)
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 5
	}
	return nil
}
