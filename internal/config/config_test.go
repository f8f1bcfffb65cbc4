package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /data/mnist
val_split: 0.25
hidden: [64, 32]
clusters: [4, 2]
epochs: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/mnist", cfg.DataDir)
	assert.Equal(t, 0.25, cfg.ValSplit)
	assert.Equal(t, []int{64, 32}, cfg.Hidden)
	assert.Equal(t, []int{4, 2}, cfg.Clusters)
	assert.Equal(t, 5, cfg.Bins, "bins should keep its default")
	assert.Equal(t, 4800, cfg.TrainBatchSize)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "data_dir: /x\nnot_a_key: 3\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"split zero":          func(c *Config) { c.ValSplit = 0 },
		"split one":           func(c *Config) { c.ValSplit = 1 },
		"cluster mismatch":    func(c *Config) { c.Clusters = []int{3} },
		"bad bins":            func(c *Config) { c.Bins = 1 },
		"no hidden":           func(c *Config) { c.Hidden = nil; c.Clusters = nil },
		"zero batch":          func(c *Config) { c.TrainBatchSize = 0 },
		"train without rate":  func(c *Config) { c.Epochs = 1; c.LearningRate = 0 },
		"negative tolerance":  func(c *Config) { c.Tolerance = -1e-3 },
		"negative mi workers": func(c *Config) { c.MIWorkers = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{Seed: 7, Epochs: 3, PlotDir: "/tmp/plots", MIWorkers: 6})
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 6, cfg.MIWorkers)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, "/tmp/plots", cfg.PlotDir)
	assert.Equal(t, 4800, cfg.TrainBatchSize, "zero overrides leave values untouched")
}
