// Package config defines the run configuration for training.
//
// All hyperparameters live in one RunConfig value created at startup
// from command-line flags and passed explicitly to every component;
// nothing reads flag state ambiently after parsing.
package config

import (
	"flag"
	"fmt"

	"golang.org/x/mod/semver"
)

// MinMixedPrecisionVersion is the oldest numeric-core version whose
// reduced-precision context the mixed-precision path can use.
const MinMixedPrecisionVersion = "v1.6.0"

// RunConfig holds every hyperparameter of a training run. Treated as
// read-only after parsing.
type RunConfig struct {
	BaseDir           string  // output/log directory
	BatchSize         int     // training batch size
	TestBatchSize     int     // evaluation batch size
	Epochs            int     // number of training epochs
	LR                float64 // SGD learning rate
	Momentum          float64 // SGD momentum
	Seed              int64   // global random seed
	LogInterval       int     // batches between training log lines
	UseMixedPrecision bool    // train with dynamic loss scaling
	DataDir           string  // MNIST IDX file directory
	Workers           int     // data loader prefetch workers
}

// RegisterFlags binds the run flags onto fs with their defaults.
func (c *RunConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BaseDir, "base_dir", "res-train-minist", "location of the log path")
	fs.IntVar(&c.BatchSize, "batch_size", 512, "input batch size for training")
	fs.IntVar(&c.TestBatchSize, "test_batch_size", 150, "input batch size for testing")
	fs.IntVar(&c.Epochs, "epochs", 10, "number of epochs to train")
	fs.Float64Var(&c.LR, "lr", 0.01, "learning rate")
	fs.Float64Var(&c.Momentum, "momentum", 0.5, "SGD momentum")
	fs.Int64Var(&c.Seed, "seed", 42, "random seed")
	fs.IntVar(&c.LogInterval, "log_interval", 10, "how many batches to wait before logging training status")
	fs.BoolVar(&c.UseMixedPrecision, "use_mixed_precision", true, "use mixed precision for training")
	fs.StringVar(&c.DataDir, "data_dir", "./data", "location of the training dataset in the local filesystem")
	fs.IntVar(&c.Workers, "workers", 16, "data loader prefetch workers")
}

// Validate checks the configuration against the numeric-core version
// before any data is touched. Mixed precision requires the reduced-
// precision context introduced in MinMixedPrecisionVersion.
func (c *RunConfig) Validate(backendVersion string) error {
	if c.BatchSize <= 0 || c.TestBatchSize <= 0 {
		return fmt.Errorf("config: batch sizes must be positive (train %d, test %d)", c.BatchSize, c.TestBatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("config: epochs must be positive, got %d", c.Epochs)
	}
	if c.LogInterval <= 0 {
		return fmt.Errorf("config: log interval must be positive, got %d", c.LogInterval)
	}
	if c.UseMixedPrecision {
		if !semver.IsValid(backendVersion) {
			return fmt.Errorf("config: invalid numeric-core version %q", backendVersion)
		}
		if semver.Compare(backendVersion, MinMixedPrecisionVersion) < 0 {
			return fmt.Errorf("config: mixed precision requires numeric core >= %s, have %s",
				MinMixedPrecisionVersion, backendVersion)
		}
	}
	return nil
}
