package skinning

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-4

// addChainRig adds a skinned model root followed by a chain of bones, each parented to the
// previous one and the first to the root. It returns the root and bone node indices.
func addChainRig(t *testing.T, s scene.Scene, root model.Transform, bones []model.Transform, ibms []mgl32.Mat4) (int, []int) {
	t.Helper()

	rootIdx := s.AddNode(scene.NewNode("root", root).WithSkin(s.SkinCount()))
	boneIdx := make([]int, len(bones))
	parent := rootIdx
	for i, b := range bones {
		boneIdx[i] = s.AddNode(scene.NewNode("bone", b))
		require.NoError(t, s.SetParent(boneIdx[i], parent))
		parent = boneIdx[i]
	}

	if ibms == nil {
		ibms = make([]mgl32.Mat4, len(bones))
		for i := range ibms {
			ibms[i] = mgl32.Ident4()
		}
	}
	_, err := s.AddSkin(scene.Skin{Name: "rig", BoneNodeIndices: boneIdx, InverseBindMatrices: ibms})
	require.NoError(t, err)
	return rootIdx, boneIdx
}

// addInstance registers a new mesh drawn at node and returns the mesh index.
func addInstance(t *testing.T, s scene.Scene, node int) int {
	t.Helper()
	m := s.AddMesh("mesh")
	require.NoError(t, s.AddMeshInstance(m, node))
	return m
}

func identities(n int) []mgl32.Mat4 {
	out := make([]mgl32.Mat4, n)
	for i := range out {
		out[i] = mgl32.Ident4()
	}
	return out
}

func assertMatricesApprox(t *testing.T, expected, actual []mgl32.Mat4) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.True(t, common.ApproxEqual4(expected[i], actual[i], eps), "matrix %d: expected %v, got %v", i, expected[i], actual[i])
	}
}

func TestTwoBoneIdentity(t *testing.T) {
	s := scene.NewScene("two-bone")
	root, _ := addChainRig(t, s, model.IdentityTransform(),
		[]model.Transform{model.IdentityTransform(), model.IdentityTransform()}, nil)
	addInstance(t, s, root)

	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	assertMatricesApprox(t, identities(2), mats)

	out, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	require.Len(t, out.AnimatedBoneTransforms, 1)

	slice := out.AnimatedBoneTransforms[0]
	assert.Equal(t, BoneTransformSlice{DrawableMeshIndex: 0, StartIndex: 256, EndIndex: 384}, slice)
	assert.Equal(t, BufferRange{Start: 0, End: 256}, out.IdentitySlice)
	assert.Len(t, out.Buffer, 512)
	assertMatricesApprox(t, identities(2), out.Matrices(slice.Range()))
	assertMatricesApprox(t, identities(4), out.Matrices(out.IdentitySlice))
}

func TestTranslatedRootCancels(t *testing.T) {
	s := scene.NewScene("translated")
	root, _ := addChainRig(t, s, model.Translated(0, 5, 0),
		[]model.Transform{model.IdentityTransform()}, nil)

	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	// inverse(T) * (T * I) * I
	assertMatricesApprox(t, identities(1), mats)
}

func TestRootIsOnlyBone(t *testing.T) {
	s := scene.NewScene("root-bone")
	root := s.AddNode(scene.NewNode("root", model.Translated(0, 5, 0)).WithSkin(0))
	_, err := s.AddSkin(scene.Skin{BoneNodeIndices: []int{root}, InverseBindMatrices: identities(1)})
	require.NoError(t, err)
	addInstance(t, s, root)

	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	// inverse(T) * T * I
	assertMatricesApprox(t, identities(1), mats)

	out, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	require.Len(t, out.AnimatedBoneTransforms, 1)
	assertMatricesApprox(t, identities(1), out.Matrices(out.AnimatedBoneTransforms[0].Range()))
}

func TestBoneTransformsInSkinOrder(t *testing.T) {
	s := scene.NewScene("order")
	root := s.AddNode(scene.NewNode("root", model.IdentityTransform()).WithSkin(0))
	a := s.AddNode(scene.NewNode("a", model.Translated(1, 0, 0)))
	b := s.AddNode(scene.NewNode("b", model.Translated(0, 2, 0)))
	c := s.AddNode(scene.NewNode("c", model.Translated(0, 0, 3)))
	for _, n := range []int{a, b, c} {
		require.NoError(t, s.SetParent(n, root))
	}
	_, err := s.AddSkin(scene.Skin{BoneNodeIndices: []int{c, a, b}, InverseBindMatrices: identities(3)})
	require.NoError(t, err)

	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	assertMatricesApprox(t, []mgl32.Mat4{
		mgl32.Translate3D(0, 0, 3),
		mgl32.Translate3D(1, 0, 0),
		mgl32.Translate3D(0, 2, 0),
	}, mats)
}

func TestBindPoseRoundTrip(t *testing.T) {
	s := scene.NewScene("bind")
	rootT := model.NewTransform([3]float32{1, 2, 3}, quatXYZW(mgl32.QuatRotate(0.3, mgl32.Vec3{0, 1, 0})), [3]float32{1, 1, 1})
	bones := []model.Transform{
		model.NewTransform([3]float32{0, 1, 0}, quatXYZW(mgl32.QuatRotate(0.7, mgl32.Vec3{0, 0, 1})), [3]float32{1, 1, 1}),
		model.NewTransform([3]float32{0, 2, 0}, quatXYZW(mgl32.QuatIdent()), [3]float32{2, 2, 2}),
		model.NewTransform([3]float32{0.5, 0, 0}, quatXYZW(mgl32.QuatRotate(-1.1, mgl32.Vec3{1, 0, 0})), [3]float32{1, 0.5, 1}),
	}

	// Inverse bind matrices are the inverses of each bone's rest pose in model space.
	rootInv := rootT.Matrix().Inv()
	ibms := make([]mgl32.Mat4, len(bones))
	acc := rootT.Matrix()
	for i, b := range bones {
		acc = acc.Mul4(b.Matrix())
		ibms[i] = rootInv.Mul4(acc).Inv()
	}

	root, _ := addChainRig(t, s, rootT, bones, ibms)
	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	assertMatricesApprox(t, identities(len(bones)), mats)
}

func TestAncestryStopsAboveTopBone(t *testing.T) {
	s := scene.NewScene("nested")
	world := s.AddNode(scene.NewNode("world", model.Translated(100, 0, 0)))
	root, _ := addChainRig(t, s, model.IdentityTransform(), []model.Transform{model.Translated(1, 0, 0)}, nil)
	require.NoError(t, s.SetParent(root, world))

	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	assertMatricesApprox(t, []mgl32.Mat4{mgl32.Translate3D(1, 0, 0)}, mats)

	assert.Equal(t, []int{2, 1}, ancestryList(map[int]int{2: 1}, 2, nil))
	assert.Equal(t, []int{3}, ancestryList(map[int]int{}, 3, nil))
	// cyclic input terminates
	assert.Len(t, ancestryList(map[int]int{1: 2, 2: 1}, 1, nil), 3)
}

func TestEmptySkin(t *testing.T) {
	s := scene.NewScene("empty")
	root, _ := addChainRig(t, s, model.IdentityTransform(), nil, []mgl32.Mat4{})
	addInstance(t, s, root)

	mats, err := BoneModelSpaceTransforms(s, root)
	require.NoError(t, err)
	assert.NotNil(t, mats)
	assert.Empty(t, mats)

	out, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	require.Len(t, out.AnimatedBoneTransforms, 1)
	assert.Equal(t, uint64(0), out.AnimatedBoneTransforms[0].Range().Len())
	assert.Len(t, out.Buffer, 256)
}

func TestMissingSkin(t *testing.T) {
	s := scene.NewScene("missing")
	plain := s.AddNode(scene.NewNode("plain", model.IdentityTransform()))

	_, err := BoneModelSpaceTransforms(s, plain)
	assert.True(t, errors.Is(err, ErrMissingSkin))

	_, err = BoneModelSpaceTransforms(s, 99)
	assert.True(t, errors.Is(err, ErrMissingSkin))

	dangling := s.AddNode(scene.NewNode("dangling", model.IdentityTransform()).WithSkin(7))
	addInstance(t, s, dangling)
	out, err := PackBoneTransforms(s, 256)
	assert.True(t, errors.Is(err, ErrMissingSkin))
	assert.Nil(t, out)
}

func TestSingularRootFailsWholePack(t *testing.T) {
	s := scene.NewScene("singular")
	good, _ := addChainRig(t, s, model.IdentityTransform(), []model.Transform{model.IdentityTransform()}, nil)
	addInstance(t, s, good)

	collapsed := model.IdentityTransform()
	collapsed.Scale = mgl32.Vec3{0, 1, 1}
	bad, _ := addChainRig(t, s, collapsed, []model.Transform{model.IdentityTransform()}, nil)
	addInstance(t, s, bad)

	_, err := BoneModelSpaceTransforms(s, bad)
	assert.True(t, errors.Is(err, ErrSingularTransform))

	out, err := PackBoneTransforms(s, 256)
	assert.True(t, errors.Is(err, ErrSingularTransform))
	assert.Nil(t, out)
}

// sharedScene has two meshes on one skeleton, one mesh on a second skeleton and one
// unskinned mesh.
func sharedScene(t *testing.T) scene.Scene {
	t.Helper()
	s := scene.NewScene("shared")

	rootA, bonesA := addChainRig(t, s, model.IdentityTransform(),
		[]model.Transform{model.Translated(1, 0, 0), model.Translated(0, 1, 0), model.Translated(0, 0, 1)}, nil)
	rootB, _ := addChainRig(t, s, model.Translated(0, 3, 0),
		[]model.Transform{model.Translated(2, 0, 0)}, nil)
	static := s.AddNode(scene.NewNode("static", model.IdentityTransform()))

	body := s.AddNode(scene.NewNode("body", model.IdentityTransform()))
	require.NoError(t, s.SetParent(body, rootA))
	addInstance(t, s, body)
	addInstance(t, s, bonesA[2])
	addInstance(t, s, rootB)
	addInstance(t, s, static)
	return s
}

func TestPackDeduplicatesSharedSkins(t *testing.T) {
	s := sharedScene(t)

	out, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	require.Len(t, out.AnimatedBoneTransforms, 3)
	assert.Equal(t, 2, out.UniqueSkins)

	m0, m1, m2 := out.AnimatedBoneTransforms[0], out.AnimatedBoneTransforms[1], out.AnimatedBoneTransforms[2]
	assert.Equal(t, []int{0, 1, 2}, []int{m0.DrawableMeshIndex, m1.DrawableMeshIndex, m2.DrawableMeshIndex})
	assert.Equal(t, m0.Range(), m1.Range())
	assert.Equal(t, BufferRange{Start: 256, End: 256 + 3*64}, m0.Range())
	assert.Equal(t, BufferRange{Start: 512, End: 512 + 64}, m2.Range())

	_, ok := out.SliceFor(3)
	assert.False(t, ok)
	got, ok := out.SliceFor(2)
	require.True(t, ok)
	assert.Equal(t, m2, got)

	// 256 identity + (192 + 64 pad) + (64 + 192 pad)
	assert.Len(t, out.Buffer, 768)
	assert.Equal(t, make([]byte, 64), out.Buffer[448:512])
	assert.Equal(t, make([]byte, 192), out.Buffer[576:768])

	assertMatricesApprox(t, []mgl32.Mat4{
		mgl32.Translate3D(1, 0, 0),
		mgl32.Translate3D(1, 1, 0),
		mgl32.Translate3D(1, 1, 1),
	}, out.Matrices(m0.Range()))
	assertMatricesApprox(t, []mgl32.Mat4{mgl32.Translate3D(2, 0, 0)}, out.Matrices(m2.Range()))
}

func TestPackAlignment(t *testing.T) {
	s := sharedScene(t)

	for _, alignment := range []uint32{16, 64, 256, 1024} {
		out, err := PackBoneTransforms(s, alignment)
		require.NoError(t, err)
		first := out.AnimatedBoneTransforms[0].StartIndex
		assert.Equal(t, uint64(256), first)
		for _, sl := range out.AnimatedBoneTransforms[1:] {
			if sl.StartIndex == first {
				continue
			}
			assert.Zero(t, sl.StartIndex%uint64(alignment), "alignment %d", alignment)
		}

		expected := 256
		for _, n := range []int{3, 1} {
			expected = common.AlignUp(expected+n*64, alignment)
		}
		assert.Len(t, out.Buffer, expected, "alignment %d", alignment)
	}

	for _, alignment := range []uint32{0, 1} {
		out, err := PackBoneTransforms(s, alignment)
		require.NoError(t, err)
		assert.Len(t, out.Buffer, 256+4*64)
	}
}

func TestPackIdempotent(t *testing.T) {
	s := sharedScene(t)

	first, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	second, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPackReflectsPoseChanges(t *testing.T) {
	s := scene.NewScene("posed")
	root, bones := addChainRig(t, s, model.IdentityTransform(), []model.Transform{model.IdentityTransform()}, nil)
	addInstance(t, s, root)

	require.NoError(t, s.SetLocalTransform(bones[0], model.Translated(0, 0, 4)))
	out, err := PackBoneTransforms(s, 16)
	require.NoError(t, err)

	m, ok := out.Matrix(out.AnimatedBoneTransforms[0].StartIndex)
	require.True(t, ok)
	assert.True(t, common.ApproxEqual4(mgl32.Translate3D(0, 0, 4), m, eps))

	_, ok = out.Matrix(uint64(len(out.Buffer)))
	assert.False(t, ok)
}

func TestParallelPackMatchesSequential(t *testing.T) {
	s := sharedScene(t)
	for i := 0; i < 4; i++ {
		root, _ := addChainRig(t, s, model.Translated(float32(i), 0, 0),
			[]model.Transform{model.Translated(0, float32(i), 0), model.Translated(0, 0, 1)}, nil)
		addInstance(t, s, root)
	}

	p := NewPacker(WithWorkers(4))
	assert.Equal(t, 4, p.Workers())

	expected, err := PackBoneTransforms(s, 256)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		got, err := p.Pack(s, 256)
		require.NoError(t, err)
		assert.Equal(t, expected.Buffer, got.Buffer)
		assert.Equal(t, expected.AnimatedBoneTransforms, got.AnimatedBoneTransforms)
	}
}

func TestReleaseStopsWorkerPool(t *testing.T) {
	s := sharedScene(t)
	root, _ := addChainRig(t, s, model.IdentityTransform(), []model.Transform{model.Translated(0, 1, 0)}, nil)
	addInstance(t, s, root)

	p := NewPacker(WithWorkers(3))
	require.NotNil(t, p.(*packer).pool)
	before, err := p.Pack(s, 256)
	require.NoError(t, err)

	p.Release()
	assert.Nil(t, p.(*packer).pool)
	assert.NotPanics(t, p.Release)

	after, err := p.Pack(s, 256)
	require.NoError(t, err)
	assert.Equal(t, before.Buffer, after.Buffer, "packing falls back to sequential resolution")

	assert.NotPanics(t, NewPacker().Release)
}

func TestPackForAlignmentSource(t *testing.T) {
	s := sharedScene(t)

	out, err := PackFor(NewPacker(WithWorkers(0)), s, FixedAlignment(64))
	require.NoError(t, err)
	assert.Len(t, out.Buffer, 256+4*64)
	assert.Equal(t, uint32(64), FixedAlignment(64).MinStorageBufferOffsetAlignment())
}

func quatXYZW(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}
