package renderer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice hands out unbacked GPU handles and can fail bind group creation.
type fakeDevice struct {
	bindGroupErr error
	layouts      int
}

func (d *fakeDevice) CreateBindGroupLayout(*wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	d.layouts++
	return &wgpu.BindGroupLayout{}, nil
}

func (d *fakeDevice) CreateBuffer(*wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	return &wgpu.Buffer{}, nil
}

func (d *fakeDevice) CreateBindGroup(*wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	if d.bindGroupErr != nil {
		return nil, d.bindGroupErr
	}
	return &wgpu.BindGroup{}, nil
}

// recordReleases swaps the GPU release hooks for ones that record their argument.
func recordReleases(t *testing.T) (buffers *[]*wgpu.Buffer, bindGroups *[]*wgpu.BindGroup) {
	t.Helper()
	buffers, bindGroups = &[]*wgpu.Buffer{}, &[]*wgpu.BindGroup{}

	prevBuffer, prevBindGroup := releaseBuffer, releaseBindGroup
	releaseBuffer = func(b *wgpu.Buffer) { *buffers = append(*buffers, b) }
	releaseBindGroup = func(bg *wgpu.BindGroup) { *bindGroups = append(*bindGroups, bg) }
	t.Cleanup(func() {
		releaseBuffer, releaseBindGroup = prevBuffer, prevBindGroup
	})
	return buffers, bindGroups
}

func TestInitStorageBindingSwapsAfterAllocation(t *testing.T) {
	buffers, bindGroups := recordReleases(t)
	device := &fakeDevice{}
	p := bind_group_provider.NewBindGroupProvider("bones")

	require.NoError(t, initStorageBinding(device, p, 0, 1024, 256))
	firstBuffer, firstBindGroup := p.Buffer(0), p.BindGroup()
	require.NotNil(t, firstBuffer)
	require.NotNil(t, firstBindGroup)
	assert.Equal(t, uint64(1024), p.BufferSize(0))
	assert.Empty(t, *buffers)
	assert.Empty(t, *bindGroups)

	require.NoError(t, initStorageBinding(device, p, 0, 2048, 256))
	assert.Equal(t, 1, device.layouts, "the layout is created once")
	assert.Equal(t, uint64(2048), p.BufferSize(0))
	assert.NotSame(t, firstBuffer, p.Buffer(0))
	require.Len(t, *buffers, 1)
	assert.Same(t, firstBuffer, (*buffers)[0])
	require.Len(t, *bindGroups, 1)
	assert.Same(t, firstBindGroup, (*bindGroups)[0])
}

func TestInitStorageBindingFailureKeepsProvider(t *testing.T) {
	buffers, bindGroups := recordReleases(t)
	device := &fakeDevice{}
	p := bind_group_provider.NewBindGroupProvider("bones")

	require.NoError(t, initStorageBinding(device, p, 0, 1024, 256))
	buf, bg := p.Buffer(0), p.BindGroup()

	device.bindGroupErr = errors.New("out of memory")
	err := initStorageBinding(device, p, 0, 4096, 256)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")

	assert.Same(t, buf, p.Buffer(0))
	assert.Same(t, bg, p.BindGroup())
	assert.Equal(t, uint64(1024), p.BufferSize(0), "size is unchanged so the next upload retries")
	require.Len(t, *buffers, 1, "only the new buffer is released")
	assert.NotSame(t, buf, (*buffers)[0])
	assert.Empty(t, *bindGroups)
}
