package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/skinning"
)

// Stats is one reporting interval's worth of frame and packing statistics.
type Stats struct {
	Elapsed time.Duration

	Frames int
	FPS    float64

	// Packs is the number of bone buffers packed during the interval.
	Packs int
	// Bytes is the total size of those buffers.
	Bytes uint64
	// MaxBytes is the largest single buffer.
	MaxBytes int
	// UniqueSkins is the total number of distinct skins resolved.
	UniqueSkins int
	// Failures counts packs that returned an error.
	Failures int

	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
}

// Profiler tracks frame rate, bone packing volume and memory statistics.
// Outputs stats to the shared logger at a configurable interval.
// Record may be called from any goroutine; Tick from the frame loop.
type Profiler struct {
	mu sync.Mutex

	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastTotalAlloc uint64

	packs       int
	bytes       uint64
	maxBytes    int
	uniqueSkins int
	failures    int
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// SetInterval changes how often Tick reports. Values <= 0 report on every tick.
//
// Parameters:
//   - d: the reporting interval
func (p *Profiler) SetInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateInterval = d
}

// Record adds the outcome of one pack to the current interval.
//
// Parameters:
//   - bones: the packed result, or nil when packing failed
//   - err: the packing error, if any
func (p *Profiler) Record(bones *skinning.AllBoneTransforms, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil || bones == nil {
		p.failures++
		return
	}

	p.packs++
	p.bytes += uint64(len(bones.Buffer))
	p.maxBytes = max(p.maxBytes, len(bones.Buffer))
	p.uniqueSkins += bones.UniqueSkins
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed and starts a new interval.
//
// Returns:
//   - Stats: the finished interval, zero when nothing was reported
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return Stats{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	seconds := max(elapsed.Seconds(), 1e-9)

	s := Stats{
		Elapsed:     elapsed,
		Frames:      p.frameCount,
		FPS:         float64(p.frameCount) / seconds,
		Packs:       p.packs,
		Bytes:       p.bytes,
		MaxBytes:    p.maxBytes,
		UniqueSkins: p.uniqueSkins,
		Failures:    p.failures,
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / seconds,
		GCCount:     p.memStats.NumGC,
	}

	common.Logger().Info("profiler",
		"fps", s.FPS,
		"packs", s.Packs,
		"bytes", s.Bytes,
		"max_bytes", s.MaxBytes,
		"unique_skins", s.UniqueSkins,
		"failures", s.Failures,
		"heap_mb", s.HeapMB,
		"alloc_rate_mb", s.AllocRateMB,
		"gc", s.GCCount,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.packs, p.bytes, p.maxBytes, p.uniqueSkins, p.failures = 0, 0, 0, 0, 0
	return s, true
}
