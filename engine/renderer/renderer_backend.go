package renderer

import "github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU RendererBackendType = iota
)

// DefaultStorageBufferOffsetAlignment is the WebGPU default for minStorageBufferOffsetAlignment.
const DefaultStorageBufferOffsetAlignment uint32 = 256

// RendererBackend is the top-level backend interface for the Renderer.
// It covers the device services the bone buffer needs: storage buffer allocation, queue writes
// and the offset alignment the device was created with.
type RendererBackend interface {
	// InitStorageBuffer allocates (or reallocates) a read-only storage buffer of size bytes at
	// binding and rebuilds the provider's bind group around it. Any previous buffer at that
	// binding is released.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the buffer and bind group on
	//   - binding: the binding index
	//   - size: the buffer size in bytes
	//
	// Returns:
	//   - error: an error if buffer or bind group creation fails
	InitStorageBuffer(provider bind_group_provider.BindGroupProvider, binding int, size uint64) error

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	//
	// Parameters:
	//   - writes: the writes to perform
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// MinStorageBufferOffsetAlignment returns the alignment the device was created with.
	//
	// Returns:
	//   - uint32: the alignment in bytes
	MinStorageBufferOffsetAlignment() uint32

	// Release releases the device, adapter and instance.
	Release()
}
