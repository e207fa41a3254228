package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	// limits are the limits the device was requested with.
	limits wgpu.Limits

	// minBindingSize is the byte size of the identity region every bone buffer starts with.
	minBindingSize uint64
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// storageDevice creates the GPU objects behind a bone storage binding.
type storageDevice interface {
	CreateBindGroupLayout(descriptor *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error)
	CreateBuffer(descriptor *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
	CreateBindGroup(descriptor *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error)
}

var _ storageDevice = &wgpu.Device{}

var (
	releaseBuffer    = (*wgpu.Buffer).Release
	releaseBindGroup = (*wgpu.BindGroup).Release
)

// newWGPURendererBackend creates a headless WebGPU device. No surface is configured; the device
// is used for buffer uploads only.
func newWGPURendererBackend(forceFallbackAdapter bool, storageAlignment uint32) (*wgpuRendererBackendImpl, error) {
	minSize, err := boneBindingMinSize()
	if err != nil {
		return nil, err
	}

	w := &wgpuRendererBackendImpl{
		mu:             &sync.Mutex{},
		instance:       wgpu.CreateInstance(nil),
		minBindingSize: minSize,
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.Release()
		return nil, errors.Wrap(err, "renderer: request adapter")
	}
	w.adapter = a

	// Start from the WebGPU default limits. A smaller storage offset alignment packs skins
	// tighter but the device request fails if the adapter cannot honour it.
	limits := wgpu.DefaultLimits()
	if storageAlignment != 0 {
		limits.MinStorageBufferOffsetAlignment = storageAlignment
	}

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Bone Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		w.Release()
		return nil, errors.Wrapf(err, "renderer: request device with storage alignment %d", limits.MinStorageBufferOffsetAlignment)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.limits = limits

	return w, nil
}

func (b *wgpuRendererBackendImpl) MinStorageBufferOffsetAlignment() uint32 {
	return b.limits.MinStorageBufferOffsetAlignment
}

func (b *wgpuRendererBackendImpl) InitStorageBuffer(provider bind_group_provider.BindGroupProvider, binding int, size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return initStorageBinding(b.device, provider, binding, size, b.minBindingSize)
}

// initStorageBinding allocates a storage buffer and a bind group over it, then swaps both into
// provider and releases the ones they replace. provider keeps its current buffer, size and bind
// group if either allocation fails.
//
// Parameters:
//   - device: the device to allocate on
//   - provider: the provider receiving the buffer
//   - binding: the binding index within the bind group
//   - size: the buffer size in bytes
//   - minBindingSize: the layout's minimum binding size, used when the layout is first created
//
// Returns:
//   - error: error if the layout, buffer or bind group cannot be created
func initStorageBinding(device storageDevice, provider bind_group_provider.BindGroupProvider, binding int, size, minBindingSize uint64) error {
	layout := provider.BindGroupLayout()
	if layout == nil {
		descriptor := boneBindGroupLayoutDescriptor(provider.Label(), binding, minBindingSize)
		var err error
		layout, err = device.CreateBindGroupLayout(&descriptor)
		if err != nil {
			return errors.Wrapf(err, "renderer: create bind group layout for %q", provider.Label())
		}
		provider.SetBindGroupLayout(layout)
	}

	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: provider.Label() + " Buffer",
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "renderer: create %d byte storage buffer for %q", size, provider.Label())
	}

	bindGroup, err := device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  provider.Label() + " Bind Group",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: uint32(binding),
			Buffer:  buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}},
	})
	if err != nil {
		releaseBuffer(buf)
		return errors.Wrapf(err, "renderer: create bind group for %q", provider.Label())
	}

	if old := provider.Buffer(binding); old != nil {
		releaseBuffer(old)
	}
	if old := provider.BindGroup(); old != nil {
		releaseBindGroup(old)
	}
	provider.SetBuffer(binding, buf, size)
	provider.SetBindGroup(bindGroup)

	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

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

// boneBindingMinSize returns the size of the identity region, measured with the WGSL
// BoneMatrix layout shaders read the buffer with.
func boneBindingMinSize() (uint64, error) {
	l, err := shader.StructLayout(model.GPUBoneMatrixSource, "BoneMatrix")
	if err != nil {
		return 0, errors.Wrap(err, "renderer: bone matrix layout")
	}
	return l.Stride() * model.IdentityBoneCount, nil
}

// boneBindGroupLayoutDescriptor describes the single read-only storage binding that holds a
// packed bone buffer, visible to vertex and compute stages.
func boneBindGroupLayoutDescriptor(label string, binding int, minBindingSize uint64) wgpu.BindGroupLayoutDescriptor {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    uint32(binding),
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageCompute,
	}
	entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	entry.Buffer.MinBindingSize = minBindingSize

	return wgpu.BindGroupLayoutDescriptor{
		Label:   label + " Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{entry},
	}
}
