// Package backend selects and abstracts the compute device used for the
// heavy tensor math. Two implementations exist: a reference CPU backend
// and a WebGPU backend for machines with a usable GPU adapter.
package backend

import (
	"os"
	"strings"

	"github.com/szhang963/HighPerfNNI/internal/backend/cpu"
	"github.com/szhang963/HighPerfNNI/internal/backend/webgpu"
	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// Version is the version of the numeric core. The mixed-precision path
// was introduced in v1.6.0; internal/config gates --use_mixed_precision
// on this value.
const Version = "v1.6.2"

// VisibleDevicesEnv restricts which GPU adapters the process may use.
// An empty value means CPU only. The training entry point sets a default
// of "0" only when the variable is unset, so a pre-set environment value
// always wins.
const VisibleDevicesEnv = "HPNNI_VISIBLE_DEVICES"

// Backend is the device-side compute interface consumed by the autodiff
// tape. Everything a forward/backward pass needs beyond cheap elementwise
// work is funneled through MatMul so that device placement stays in one
// place.
type Backend interface {
	Name() string
	Device() tensor.Device

	// MatMul computes a @ b for 2D tensors [M,K] @ [K,N] -> [M,N].
	MatMul(a, b *tensor.Tensor) *tensor.Tensor

	// SetDeterministic disables run-to-run nondeterministic performance
	// heuristics (kernel auto-tuning) at some throughput cost.
	SetDeterministic(on bool)
}

// VisibleDevices parses VisibleDevicesEnv into a list of adapter ids.
// Empty entries are discarded.
func VisibleDevices() []string {
	raw := os.Getenv(VisibleDevicesEnv)
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

// Resolve picks the compute backend for this run: the WebGPU backend when
// at least one device id is visible and an adapter can be acquired,
// otherwise the CPU backend. GPU acquisition failure is not an error,
// only a fallback to the slower device.
func Resolve() Backend {
	if len(VisibleDevices()) > 0 && webgpu.Available() {
		if b, err := webgpu.New(); err == nil {
			return b
		}
	}
	return cpu.New()
}
