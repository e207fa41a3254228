package skinning

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// Packer builds the per-frame bone buffer for a scene.
// A Packer holds no per-call state and may be shared; concurrent Pack calls are safe as long
// as the scene graph tolerates concurrent readers.
type Packer interface {
	// Pack resolves every skinned drawable mesh in g and serializes the results into one buffer.
	// The buffer begins with IdentityBoneCount identity matrices. Each unique skin is written once,
	// followed by zero padding so the next skin begins at a multiple of alignment.
	// Meshes sharing a skin receive the same byte range.
	//
	// Parameters:
	//   - g: the scene graph to read
	//   - alignment: the device's minimum storage-buffer offset alignment in bytes (0 or 1 disables padding)
	//
	// Returns:
	//   - *AllBoneTransforms: the packed buffer and per-mesh ranges
	//   - error: the first resolver error encountered; no partial result is returned
	Pack(g SceneGraph, alignment uint32) (*AllBoneTransforms, error)

	// Workers returns the number of goroutines used to resolve unique skins.
	Workers() int

	// Release stops the worker pool. Later Pack calls resolve skins sequentially.
	// Safe to call multiple times.
	Release()
}

// packer is the implementation of the Packer interface.
type packer struct {
	workers int

	mu sync.RWMutex
	// pool resolves unique skins concurrently when workers > 1; nil otherwise.
	pool worker.DynamicWorkerPool
}

// Ensure packer implements Packer interface.
var _ Packer = &packer{}

// skinJob is one unique skin awaiting resolution.
type skinJob struct {
	skinIndex int
	modelRoot int
	skin      scene.Skin

	matrices []mgl32.Mat4
	err      error
}

// meshPlan records which skin a drawable mesh is bound to.
type meshPlan struct {
	meshIndex int
	skinIndex int
}

// NewPacker creates a new Packer.
//
// Parameters:
//   - options: functional options to configure the packer
//
// Returns:
//   - Packer: the newly created packer
func NewPacker(options ...PackerBuilderOption) Packer {
	p := &packer{
		workers: 1,
	}

	for _, option := range options {
		option(p)
	}

	if p.workers > 1 {
		p.pool = worker.NewDynamicWorkerPool(p.workers, 256, 1*time.Second)
	}

	return p
}

var defaultPacker = NewPacker()

// PackBoneTransforms packs g with a sequential default Packer.
//
// Parameters:
//   - g: the scene graph to read
//   - alignment: the device's minimum storage-buffer offset alignment in bytes
//
// Returns:
//   - *AllBoneTransforms: the packed buffer and per-mesh ranges
//   - error: the first resolver error encountered
func PackBoneTransforms(g SceneGraph, alignment uint32) (*AllBoneTransforms, error) {
	return defaultPacker.Pack(g, alignment)
}

// PackFor packs g using the alignment reported by src.
//
// Parameters:
//   - p: the packer to use
//   - g: the scene graph to read
//   - src: the alignment source, typically the renderer
//
// Returns:
//   - *AllBoneTransforms: the packed buffer and per-mesh ranges
//   - error: the first resolver error encountered
func PackFor(p Packer, g SceneGraph, src AlignmentSource) (*AllBoneTransforms, error) {
	return p.Pack(g, src.MinStorageBufferOffsetAlignment())
}

func (p *packer) Workers() int {
	return p.workers
}

func (p *packer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.pool.Stop()
		p.pool = nil
	}
}

func (p *packer) Pack(g SceneGraph, alignment uint32) (*AllBoneTransforms, error) {
	jobs, plans, err := planSkins(g)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.pool != nil && len(jobs) > 1 {
		p.resolveParallel(g, jobs)
	} else {
		for _, j := range jobs {
			j.matrices, j.err = resolveSkin(g, j.modelRoot, j.skin)
		}
	}
	p.mu.RUnlock()

	for _, j := range jobs {
		if j.err != nil {
			return nil, j.err
		}
	}

	out := serialize(jobs, plans, alignment)
	common.Logger().Debug("packed bone transforms",
		"meshes", len(out.AnimatedBoneTransforms),
		"unique_skins", out.UniqueSkins,
		"bytes", len(out.Buffer),
		"alignment", alignment,
	)
	return out, nil
}

// planSkins walks the drawable meshes in order and collects the unique skins to resolve.
// A mesh participates when any of its instances sits under a skinned model root; the first
// such instance decides which skin the mesh uses.
func planSkins(g SceneGraph) ([]*skinJob, []meshPlan, error) {
	var jobs []*skinJob
	var plans []meshPlan
	seen := make(map[int]struct{})

	for mi, mesh := range g.DrawableMeshes() {
		modelRoot, found := -1, false
		for _, inst := range mesh.Instances {
			if modelRoot, found = g.ModelRootIfInSkeleton(inst.NodeIndex); found {
				break
			}
		}
		if !found {
			continue
		}

		skinIndex, skin, err := skinOf(g, modelRoot)
		if err != nil {
			return nil, nil, err
		}

		if _, ok := seen[skinIndex]; !ok {
			seen[skinIndex] = struct{}{}
			jobs = append(jobs, &skinJob{skinIndex: skinIndex, modelRoot: modelRoot, skin: skin})
		}
		plans = append(plans, meshPlan{meshIndex: mi, skinIndex: skinIndex})
	}
	return jobs, plans, nil
}

// resolveParallel resolves each job on the worker pool and blocks until all have finished.
// A WaitGroup is the per-call barrier since the pool's own Wait blocks until workers idle-exit.
func (p *packer) resolveParallel(g SceneGraph, jobs []*skinJob) {
	var wg sync.WaitGroup
	for id, j := range jobs {
		wg.Add(1)
		job := j
		p.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				job.matrices, job.err = resolveSkin(g, job.modelRoot, job.skin)
				return nil, job.err
			},
		})
	}
	wg.Wait()
}

// serialize lays out the identity region and every resolved job, in job order, and builds
// the per-mesh descriptors.
func serialize(jobs []*skinJob, plans []meshPlan, alignment uint32) *AllBoneTransforms {
	size := model.IdentityBoneCount * common.Mat4Size
	for _, j := range jobs {
		size += len(j.matrices) * common.Mat4Size
		size = common.AlignUp(size, alignment)
	}

	buf := make([]byte, 0, size)
	identity := model.NewGPUBoneMatrix(mgl32.Ident4())
	for i := 0; i < model.IdentityBoneCount; i++ {
		buf = identity.AppendMarshal(buf)
	}
	identityRange := BufferRange{Start: 0, End: uint64(len(buf))}

	ranges := make(map[int]BufferRange, len(jobs))
	for _, j := range jobs {
		start := uint64(len(buf))
		for _, m := range j.matrices {
			g := model.NewGPUBoneMatrix(m)
			buf = g.AppendMarshal(buf)
		}
		ranges[j.skinIndex] = BufferRange{Start: start, End: uint64(len(buf))}

		if pad := common.AlignPadding(len(buf), alignment); pad > 0 {
			buf = append(buf, make([]byte, pad)...)
		}
	}

	slices := make([]BoneTransformSlice, 0, len(plans))
	for _, pl := range plans {
		r := ranges[pl.skinIndex]
		slices = append(slices, BoneTransformSlice{
			DrawableMeshIndex: pl.meshIndex,
			StartIndex:        r.Start,
			EndIndex:          r.End,
		})
	}

	return &AllBoneTransforms{
		Buffer:                 buf,
		AnimatedBoneTransforms: slices,
		IdentitySlice:          identityRange,
		UniqueSkins:            len(jobs),
	}
}
