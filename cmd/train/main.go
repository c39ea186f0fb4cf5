// Command train runs the MNIST training/evaluation loop.
//
// It parses hyperparameters from flags, prepares the output directory
// (training.log plus a best-effort source backup for provenance),
// selects the compute device, and hands everything to the trainer.
// Any failure is logged with context and terminates the process with a
// non-zero exit code.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/szhang963/HighPerfNNI/internal/backend"
	"github.com/szhang963/HighPerfNNI/internal/config"
	"github.com/szhang963/HighPerfNNI/internal/logging"
	"github.com/szhang963/HighPerfNNI/internal/train"
)

// Source files copied into <base_dir>/code for provenance.
var backupFiles = []string{
	"cmd/train/main.go",
	"internal/nn/net.go",
}

func main() {
	var cfg config.RunConfig
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	logger, closeLog, err := logging.New(cfg.BaseDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	backupCode(cfg.BaseDir)

	// Restrict adapter visibility before the device is resolved. A value
	// already present in the environment wins over the default.
	if _, set := os.LookupEnv(backend.VisibleDevicesEnv); !set {
		os.Setenv(backend.VisibleDevicesEnv, "0")
	}

	b := backend.Resolve()
	logger.Printf("Using device : %s", b.Name())
	logger.Printf("\tvisible device ids [%s] = %v", backend.VisibleDevicesEnv, backend.VisibleDevices())
	logger.Printf("config: %+v", cfg)

	if _, err := train.New(cfg, b, logger).Run(); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// backupCode copies the model definition and this entry point into
// <base_dir>/code. Purely a convenience for provenance; failures are
// ignored.
func backupCode(baseDir string) {
	codeDir := filepath.Join(baseDir, "code")
	if err := os.MkdirAll(codeDir, 0o755); err != nil {
		return
	}
	for _, src := range backupFiles {
		copyFile(src, filepath.Join(codeDir, filepath.Base(src)))
	}
}

func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()
	_, _ = io.Copy(out, in)
}
