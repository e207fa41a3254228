package bind_group_provider

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// The following fields are GPU allocated resources and must be released when no longer needed. They are populated by the Renderer, not by user-creation.

	// bindGroup is the GPU bind group created for this provider, or nil if not initialized with the Renderer.
	bindGroup *wgpu.BindGroup
	// bindGroupLayout is the GPU bind group layout created for this provider, or nil if not initialized with the Renderer.
	bindGroupLayout *wgpu.BindGroupLayout
	// buffers holds the GPU buffers created for this provider, keyed by binding index.
	buffers map[int]*wgpu.Buffer

	// bufferSizes tracks the allocated size in bytes of each buffer, keyed by binding index.
	// The renderer consults it to decide whether a write needs the buffer to grow.
	bufferSizes map[int]uint64
}

// BindGroupProvider defines the interface for components that require GPU bind group resources.
// The bone buffer of each scene is held by a BindGroupProvider; the Renderer uses it to create,
// grow and write the underlying storage buffer and to rebuild the bind group after growth.
//
// Usage pattern:
//  1. Caller creates a BindGroupProvider with a label
//  2. Renderer.InitStorageBuffer(provider, binding, size) allocates the buffer and bind group
//  3. Renderer.WriteBuffers writes packed bytes, growing the buffer when needed
//  4. Draw code binds BindGroup() over the whole buffer with no dynamic offsets; shaders index
//     each mesh's bones from its slice start
type BindGroupProvider interface {
	// Release releases any GPU resources held by this provider.
	// It will clean up all buffers and bind groups, and remove them from the map they belonged to.
	Release()

	// Label returns the debug label for this provider.
	// Used for debugging and profiling purposes.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the created bind group for shader binding.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group or nil
	BindGroup() *wgpu.BindGroup

	// BindGroupLayout returns the created bind group layout for this provider.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the bind group layout or nil
	BindGroupLayout() *wgpu.BindGroupLayout

	// Buffer returns the GPU buffer for a binding.
	// Returns nil if GPU resources have not been initialized.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer or nil
	Buffer(binding int) *wgpu.Buffer

	// Buffers returns a map of all buffers associated with this provider, keyed by binding index.
	//
	// Returns:
	//   - map[int]*wgpu.Buffer: a map of buffers keyed by binding index
	Buffers() map[int]*wgpu.Buffer

	// BufferSize returns the allocated size of the buffer at a binding, or 0 if none.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - uint64: the size in bytes
	BufferSize(binding int) uint64

	// SetBindGroup sets the bind group after GPU initialization.
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// SetBindGroupLayout sets the bind group layout after GPU initialization.
	//
	// Parameters:
	//   - bgl: the created bind group layout
	SetBindGroupLayout(bgl *wgpu.BindGroupLayout)

	// SetBuffer stores a buffer and its allocated size for a binding.
	// A previous buffer at the same binding is not released; callers replacing a buffer release it first.
	//
	// Parameters:
	//   - binding: the binding index
	//   - buf: the created buffer
	//   - size: the buffer's size in bytes
	SetBuffer(binding int, buf *wgpu.Buffer, size uint64)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:       label,
		buffers:     make(map[int]*wgpu.Buffer),
		bufferSizes: make(map[int]uint64),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() *wgpu.BindGroup {
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(binding int) *wgpu.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]*wgpu.Buffer {
	return p.buffers
}

func (p *bindGroupProvider) BufferSize(binding int) uint64 {
	return p.bufferSizes[binding]
}

func (p *bindGroupProvider) SetBindGroup(bg *wgpu.BindGroup) {
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl *wgpu.BindGroupLayout) {
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBuffer(binding int, buf *wgpu.Buffer, size uint64) {
	if p.buffers == nil {
		p.buffers = make(map[int]*wgpu.Buffer)
	}
	if p.bufferSizes == nil {
		p.bufferSizes = make(map[int]uint64)
	}
	p.buffers[binding] = buf
	p.bufferSizes[binding] = size
}

func (p *bindGroupProvider) Release() {
	for i, buf := range p.buffers {
		if buf != nil {
			buf.Release()
		}
		delete(p.buffers, i)
		delete(p.bufferSizes, i)
	}

	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
}
