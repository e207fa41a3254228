package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/Carmen-Shannon/oxy-skin/engine/skinning"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithScene registers a scene at the given z-index key during engine construction.
//
// Parameters:
//   - key: the z-index determining frame order (lower first)
//   - s: the Scene to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}

// WithRenderer attaches a GPU renderer. Packed bones are uploaded to it each frame and its
// minimum storage-buffer offset alignment replaces the fallback alignment.
//
// Parameters:
//   - r: the renderer; the engine releases it in Release
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithPacker sets the bone packer used each frame.
//
// Parameters:
//   - p: the packer
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPacker(p skinning.Packer) EngineBuilderOption {
	return func(e *engine) {
		e.packer = p
	}
}

// WithAlignment sets the alignment used for packing when no renderer is attached.
//
// Parameters:
//   - src: the alignment source, e.g. skinning.FixedAlignment(16)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithAlignment(src skinning.AlignmentSource) EngineBuilderOption {
	return func(e *engine) {
		e.alignment = src
	}
}

// WithBoneBinding sets the binding index of the bone storage buffer.
//
// Parameters:
//   - binding: the binding index (default 0)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBoneBinding(binding int) EngineBuilderOption {
	return func(e *engine) {
		e.boneBinding = binding
	}
}

// WithConfig applies the packer, alignment, tick rate and profiling settings of a config.
// It does not create a renderer; use NewEngineFromConfig for that.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.packer = skinning.NewPacker(cfg.PackerOptions()...)
		e.alignment = cfg.FallbackAlignment()
		WithTickRate(cfg.Engine.TickRate)(e)
		e.profilingEnabled = cfg.Engine.Profiling
	}
}
