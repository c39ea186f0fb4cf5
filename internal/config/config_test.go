package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) RunConfig {
	t.Helper()
	var cfg RunConfig
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := parse(t)

	assert.Equal(t, "res-train-minist", cfg.BaseDir)
	assert.Equal(t, 512, cfg.BatchSize)
	assert.Equal(t, 150, cfg.TestBatchSize)
	assert.Equal(t, 10, cfg.Epochs)
	assert.Equal(t, 0.01, cfg.LR)
	assert.Equal(t, 0.5, cfg.Momentum)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 10, cfg.LogInterval)
	assert.True(t, cfg.UseMixedPrecision)
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestFlagOverrides(t *testing.T) {
	cfg := parse(t, "-batch_size=64", "-epochs=2", "-use_mixed_precision=false", "-lr=0.1")

	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 2, cfg.Epochs)
	assert.False(t, cfg.UseMixedPrecision)
	assert.Equal(t, 0.1, cfg.LR)
}

func TestValidate(t *testing.T) {
	cfg := parse(t)
	assert.NoError(t, cfg.Validate("v1.6.2"))

	// Exactly the minimum version is allowed.
	assert.NoError(t, cfg.Validate(MinMixedPrecisionVersion))
}

func TestValidateRejectsOldVersion(t *testing.T) {
	cfg := parse(t)
	err := cfg.Validate("v1.5.0")
	assert.ErrorContains(t, err, "mixed precision requires")

	// Full precision does not care about the version.
	cfg.UseMixedPrecision = false
	assert.NoError(t, cfg.Validate("v1.5.0"))
}

func TestValidateRejectsBadVersionString(t *testing.T) {
	cfg := parse(t)
	assert.ErrorContains(t, cfg.Validate("1.6"), "invalid numeric-core version")
}

func TestValidateRejectsBadFields(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
	}{
		{"zero batch size", []string{"-batch_size=0"}},
		{"negative test batch size", []string{"-test_batch_size=-1"}},
		{"zero epochs", []string{"-epochs=0"}},
		{"zero log interval", []string{"-log_interval=0"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := parse(t, tc.args...)
			assert.Error(t, cfg.Validate("v1.6.2"))
		})
	}
}
