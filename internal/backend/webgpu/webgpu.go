// Package webgpu implements the GPU compute backend on top of
// go-webgpu (github.com/go-webgpu/webgpu), zero-CGO WebGPU bindings.
//
// Only MatMul runs on the device; it dominates the arithmetic of the
// classifier's forward and backward passes. Results are read back to host
// memory after each dispatch.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// matmulShader computes C = A @ B for A [M,K], B [K,N], C [M,N].
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.M || col >= params.N) {
        return;
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }

    result[row * params.N + col] = sum;
}
`

// Backend implements tensor math on a WebGPU adapter.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfoGo

	mu       sync.Mutex
	shader   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
}

// Available reports whether a WebGPU adapter can be acquired.
func Available() (available bool) {
	// wgpu_native may be missing entirely; that surfaces as a panic.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// New acquires the high-performance adapter and its default queue.
func New() (backend *Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: adapterInfo,
	}, nil
}

// Name returns the backend name including the adapter description.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// SetDeterministic is a no-op: the matmul shader has a fixed per-element
// accumulation order and commands run on a single queue.
func (b *Backend) SetDeterministic(bool) {}

// Release frees all GPU resources. The backend is unusable afterwards.
func (b *Backend) Release() {
	if b.pipeline != nil {
		b.pipeline.Release()
		b.pipeline = nil
	}
	if b.shader != nil {
		b.shader.Release()
		b.shader = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// MatMul computes a @ b on the GPU for [M,K] @ [K,N] -> [M,N].
func (b *Backend) MatMul(a, c *tensor.Tensor) *tensor.Tensor {
	as, cs := a.Shape(), c.Shape()
	if len(as) != 2 || len(cs) != 2 || as[1] != cs[0] {
		panic(fmt.Sprintf("webgpu: MatMul shape mismatch: %v @ %v", as, cs))
	}
	out, err := b.runMatMul(a, c, as[0], as[1], cs[1])
	if err != nil {
		panic("webgpu: MatMul: " + err.Error())
	}
	return out
}

func (b *Backend) runMatMul(a, c *tensor.Tensor, m, k, n int) (*tensor.Tensor, error) {
	pipeline := b.matmulPipeline()

	bufA := b.createBuffer(f32Bytes(a.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufA.Release()
	bufB := b.createBuffer(f32Bytes(c.Data()), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufB.Release()

	resultSize := uint64(m * n * 4)
	bufResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufResult.Release()

	// Uniform params, 16-byte aligned.
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))
	binary.LittleEndian.PutUint32(params[8:12], uint32(n))
	bufParams := b.createBuffer(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer bufParams.Release()

	layout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(layout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, uint64(len(a.Data())*4)),
		wgpu.BufferBindingEntry(1, bufB, 0, uint64(len(c.Data())*4)),
		wgpu.BufferBindingEntry(2, bufResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32((n+15)/16), uint32((m+15)/16), 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	raw, err := b.readBuffer(bufResult, resultSize)
	if err != nil {
		return nil, err
	}

	out := tensor.New(tensor.Shape{m, n})
	copy(f32Bytes(out.Data()), raw)
	return out, nil
}

// matmulPipeline lazily compiles and caches the matmul compute pipeline.
func (b *Backend) matmulPipeline() *wgpu.ComputePipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pipeline == nil {
		b.shader = b.device.CreateShaderModuleWGSL(matmulShader)
		b.pipeline = b.device.CreateComputePipelineSimple(nil, b.shader, "main")
	}
	return b.pipeline
}

// createBuffer allocates a GPU buffer pre-filled with data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer back to host memory via a staging
// buffer, since storage buffers cannot be mapped directly.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	result := make([]byte, size)
	copy(result, mapped)
	staging.Unmap()
	return result, nil
}

// f32Bytes reinterprets a float32 slice as bytes without copying.
func f32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}
