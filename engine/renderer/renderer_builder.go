package renderer

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Useful on CI machines without a GPU.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithStorageBufferOffsetAlignment requests a device whose minimum storage-buffer offset
// alignment is the given value instead of the WebGPU default of 256 bytes.
// Many desktop adapters support 16 or 32, which lets bone packing waste less padding.
// Device creation fails if the adapter cannot honour the request. 0 keeps the default.
//
// Parameters:
//   - alignment: the alignment in bytes, a power of two
//
// Returns:
//   - RendererBuilderOption: a function that applies the alignment option to a renderer
func WithStorageBufferOffsetAlignment(alignment uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.storageAlignment = alignment
	}
}
