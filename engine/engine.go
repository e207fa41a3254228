package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/Carmen-Shannon/oxy-skin/engine/skinning"
	"github.com/pkg/errors"
)

// DefaultBoneBinding is the binding index of the bone storage buffer in each scene's bind group.
const DefaultBoneBinding = 0

// engine implements the Engine interface.
// Coordinates the tick loop and the per-frame bone packing of every active scene.
type engine struct {
	mu sync.RWMutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate     time.Duration
	tickCallback       func(deltaTime float32)
	frameCallback      func(key int, bones *skinning.AllBoneTransforms)
	frameErrorCallback func(key int, err error)

	packer    skinning.Packer
	renderer  renderer.Renderer
	alignment skinning.AlignmentSource

	boneBinding int

	scenes    map[int]scene.Scene
	providers map[int]bind_group_provider.BindGroupProvider
	bones     map[int]*skinning.AllBoneTransforms
}

// Engine is the main entry point for the engine.
// It owns a set of scenes keyed by z-index and, once per tick, packs the bone transforms of
// every active scene and uploads them to the renderer's storage buffers.
type Engine interface {
	// Renderer returns the GPU renderer, or nil when running headless.
	//
	// Returns:
	//   - renderer.Renderer: the renderer or nil
	Renderer() renderer.Renderer

	// Packer returns the bone packer used each frame.
	//
	// Returns:
	//   - skinning.Packer: the packer
	Packer() skinning.Packer

	// Alignment returns the storage-buffer offset alignment used for packing. It comes from the
	// renderer when one is attached, otherwise from the configured fallback.
	//
	// Returns:
	//   - uint32: the alignment in bytes
	Alignment() uint32

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// Profiler returns the engine's profiler.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick before the frame is packed.
	// Use this to pose skeletons through scene.SetLocalTransform.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called with each scene's packed bones after upload.
	//
	// Parameters:
	//   - callback: function receiving the scene key and its packed bones
	SetFrameCallback(callback func(key int, bones *skinning.AllBoneTransforms))

	// SetFrameErrorCallback registers the function called when a scene fails to pack or upload.
	// The failing scene keeps its previous frame's bones.
	//
	// Parameters:
	//   - callback: function receiving the scene key and the error
	SetFrameErrorCallback(callback func(key int, err error))

	// AddScene registers a scene at the given z-index key.
	// Scenes are packed in ascending key order.
	//
	// Parameters:
	//   - key: the z-index determining frame order (lower first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key and releases its bone buffer.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// BoneTransforms returns the most recent packed bones of the scene at key, or nil.
	//
	// Parameters:
	//   - key: the scene key
	//
	// Returns:
	//   - *skinning.AllBoneTransforms: the last successful pack
	BoneTransforms(key int) *skinning.AllBoneTransforms

	// BindGroupProvider returns the provider holding the bone buffer of the scene at key, or nil.
	//
	// Parameters:
	//   - key: the scene key
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the provider or nil
	BindGroupProvider(key int) bind_group_provider.BindGroupProvider

	// Frame packs and uploads the bones of every active scene once.
	// Every scene is attempted; errors are reported to the frame error callback.
	//
	// Returns:
	//   - error: the first scene error of the frame, or nil
	Frame() error

	// Run starts the tick loop and blocks until Quit is called.
	Run()

	// Quit signals the tick loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release frees the bone buffers and the renderer, then stops the packer's workers.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Without options the engine runs headless with a single-worker packer, packs at the
// WebGPU default alignment of 256 bytes and ticks at 60Hz.
//
// Parameters:
//   - options: functional options for engine configuration (renderer, packer, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		providers:       make(map[int]bind_group_provider.BindGroupProvider),
		bones:           make(map[int]*skinning.AllBoneTransforms),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
		alignment:       skinning.FixedAlignment(renderer.DefaultStorageBufferOffsetAlignment),
		boneBinding:     DefaultBoneBinding,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.packer == nil {
		e.packer = skinning.NewPacker()
	}

	return e
}

// NewEngineFromConfig creates an Engine described by cfg. A GPU renderer is created when
// cfg.Renderer.Enabled is set.
//
// Parameters:
//   - cfg: the configuration
//   - options: further options applied after the configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if the config is invalid or the renderer cannot be created
func NewEngineFromConfig(cfg config.Config, options ...EngineBuilderOption) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []EngineBuilderOption{WithConfig(cfg)}
	if cfg.Renderer.Enabled {
		r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, cfg.RendererOptions()...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create renderer")
		}
		opts = append(opts, WithRenderer(r))
	}

	return NewEngine(append(opts, options...)...), nil
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Packer() skinning.Packer {
	return e.packer
}

func (e *engine) Alignment() uint32 {
	if e.renderer != nil {
		return e.renderer.MinStorageBufferOffsetAlignment()
	}
	return e.alignment.MinStorageBufferOffsetAlignment()
}

func (e *engine) Run() {
	e.running.Store(true)
	e.handle()
	e.wg.Wait()
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the tick and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Each tick fires the tick callback and then packs the frame. Listens for dynamic rate
// changes via tickRateChannel and exits when the quit channel is closed.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleEngine() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("engine goroutine recovered from panic", "panic", fmt.Sprint(r))
			e.signalQuit()
		}
	}()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}

			_ = e.Frame()

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) Frame() error {
	alignment := e.Alignment()

	var firstErr error
	for _, key := range e.activeKeys() {
		if err := e.frameScene(key, alignment); err != nil {
			common.Logger().Warn("frame dropped", "scene", key, "err", err)
			if e.frameErrorCallback != nil {
				e.frameErrorCallback(key, err)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// frameScene packs one scene, uploads the result when a renderer is attached and stores it.
func (e *engine) frameScene(key int, alignment uint32) error {
	s := e.Scene(key)
	if s == nil {
		return nil
	}

	bones, err := e.packer.Pack(s, alignment)
	if e.profiler != nil {
		e.profiler.Record(bones, err)
	}
	if err != nil {
		return errors.Wrapf(err, "scene %d (%s)", key, s.Name())
	}

	stored, err := e.commit(key, s, bones)
	if err != nil || !stored {
		return err
	}

	if e.frameCallback != nil {
		e.frameCallback(key, bones)
	}
	return nil
}

// activeKeys returns the keys of active scenes in ascending order.
func (e *engine) activeKeys() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]int, 0, len(e.scenes))
	for k, s := range e.scenes {
		if s.Active() {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	return keys
}

// commit uploads bones to the scene's provider when a renderer is attached and stores them.
// Nothing is uploaded or stored if key no longer holds s, since the scene was removed or
// replaced while it was being packed.
//
// Returns:
//   - bool: true if the bones were stored
//   - error: error if the upload fails
func (e *engine) commit(key int, s scene.Scene, bones *skinning.AllBoneTransforms) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scenes[key] != s {
		common.Logger().Debug("scene removed while packing", "scene", key)
		return false, nil
	}

	if e.renderer != nil {
		provider, ok := e.providers[key]
		if !ok {
			provider = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("%s bones", s.Name()))
			e.providers[key] = provider
		}
		if err := e.renderer.UploadBoneTransforms(provider, e.boneBinding, bones); err != nil {
			return false, errors.Wrapf(err, "scene %d (%s): upload", key, s.Name())
		}
	}

	e.bones[key] = bones
	return true, nil
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send; a pending update is replaced
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(key int, bones *skinning.AllBoneTransforms)) {
	e.frameCallback = callback
}

func (e *engine) SetFrameErrorCallback(callback func(key int, err error)) {
	e.frameErrorCallback = callback
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.scenes, key)
	delete(e.bones, key)
	if p, ok := e.providers[key]; ok {
		p.Release()
		delete(e.providers, key)
	}
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

func (e *engine) BoneTransforms(key int) *skinning.AllBoneTransforms {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bones[key]
}

func (e *engine) BindGroupProvider(key int) bind_group_provider.BindGroupProvider {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.providers[key]
}

func (e *engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k, p := range e.providers {
		p.Release()
		delete(e.providers, k)
	}
	if e.renderer != nil {
		e.renderer.Release()
		e.renderer = nil
	}
	e.packer.Release()
}
