package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/skinning"
	"github.com/pkg/errors"
)

// minStorageBufferSize is the smallest storage buffer the renderer allocates for bone data.
const minStorageBufferSize uint64 = 1024

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	storageAlignment     uint32
}

// Renderer defines the interface for the GPU side of bone skinning.
//
// The Renderer owns a headless GPU device and uploads packed bone buffers into storage buffers
// held by BindGroupProviders. It also reports the device's minimum storage-buffer offset
// alignment, which the bone packer needs to place each skin at a bindable offset.
type Renderer interface {
	skinning.AlignmentSource

	// InitStorageBuffer allocates a read-only storage buffer of size bytes at binding on the
	// provider and builds its bind group. Calling it again replaces the buffer.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the buffer on
	//   - binding: the binding index
	//   - size: the buffer size in bytes
	//
	// Returns:
	//   - error: an error if buffer creation fails
	InitStorageBuffer(provider bind_group_provider.BindGroupProvider, binding int, size uint64) error

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	// Each BufferWrite targets a specific buffer on a BindGroupProvider at a given binding and offset.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// UploadBoneTransforms writes a packed bone buffer to the provider's storage buffer at binding,
	// growing the buffer first if it is too small. The whole packed buffer is written in one call.
	//
	// Parameters:
	//   - provider: the BindGroupProvider holding the bone buffer
	//   - binding: the binding index
	//   - bones: the packed bone transforms
	//
	// Returns:
	//   - error: an error if the buffer could not be grown
	UploadBoneTransforms(provider bind_group_provider.BindGroupProvider, binding int, bones *skinning.AllBoneTransforms) error

	// Release releases the GPU device. Providers must be released by their owners first.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with a headless device on the specified backend.
//
// Parameters:
//   - backendType: the type of backend to use (e.g., WGPU)
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if no adapter or device could be obtained
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	if r.storageAlignment != 0 && !common.IsPowerOfTwo(r.storageAlignment) {
		return nil, errors.Errorf("renderer: storage buffer offset alignment %d is not a power of two", r.storageAlignment)
	}

	switch backendType {
	case BackendTypeWGPU:
		fallthrough
	default:
		b, err := newWGPURendererBackend(r.forceFallbackAdapter, r.storageAlignment)
		if err != nil {
			return nil, err
		}
		r.backend = b
	}

	common.Logger().Info("renderer ready",
		"backend", r.backendType,
		"storage_alignment", r.backend.MinStorageBufferOffsetAlignment(),
	)
	return r, nil
}

func (r *renderer) MinStorageBufferOffsetAlignment() uint32 {
	return r.backend.MinStorageBufferOffsetAlignment()
}

func (r *renderer) InitStorageBuffer(provider bind_group_provider.BindGroupProvider, binding int, size uint64) error {
	return r.backend.InitStorageBuffer(provider, binding, size)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.backend.WriteBuffers(writes)
}

func (r *renderer) UploadBoneTransforms(provider bind_group_provider.BindGroupProvider, binding int, bones *skinning.AllBoneTransforms) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	write := bind_group_provider.BufferWrite{
		Provider: provider,
		Binding:  binding,
		Offset:   0,
		Data:     bones.Buffer,
	}

	if provider.Buffer(binding) == nil || !write.Fits() {
		size := storageBufferCapacity(provider.BufferSize(binding), write.End())
		common.Logger().Debug("growing bone buffer",
			"provider", provider.Label(),
			"from", provider.BufferSize(binding),
			"to", size,
		)
		if err := r.backend.InitStorageBuffer(provider, binding, size); err != nil {
			return err
		}
	}

	r.backend.WriteBuffers([]bind_group_provider.BufferWrite{write})
	return nil
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend != nil {
		r.backend.Release()
		r.backend = nil
	}
}

// storageBufferCapacity returns the size to allocate for a buffer that must hold needed bytes.
// Capacity doubles from the current size so per-frame growth settles quickly.
func storageBufferCapacity(current, needed uint64) uint64 {
	size := current
	if size < minStorageBufferSize {
		size = minStorageBufferSize
	}
	for size < needed {
		size *= 2
	}
	return size
}
