package loader

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/Carmen-Shannon/oxy-skin/engine/skinning"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// riggedDocument builds an armature with two stacked bones and a skinned mesh node.
// The inverse bind matrices match the rest pose, so packing yields identities.
func riggedDocument() *gltf.Document {
	data := model.MarshalBoneMatrices([]mgl32.Mat4{
		mgl32.Translate3D(0, -1, 0),
		mgl32.Translate3D(0, -2, 0),
	})

	return &gltf.Document{
		Asset:       gltf.Asset{Version: "2.0"},
		Buffers:     []*gltf.Buffer{{ByteLength: uint32(len(data)), Data: data}},
		BufferViews: []*gltf.BufferView{{Buffer: 0, ByteLength: uint32(len(data))}},
		Accessors: []*gltf.Accessor{{
			BufferView:    gltf.Index(0),
			ComponentType: gltf.ComponentFloat,
			Count:         2,
			Type:          gltf.AccessorMat4,
		}},
		Nodes: []*gltf.Node{
			{Name: "armature", Children: []uint32{1, 3}},
			{Name: "hip", Translation: [3]float32{0, 1, 0}, Children: []uint32{2}},
			{Name: "spine", Matrix: [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 1, 0, 1}},
			{Name: "body", Mesh: gltf.Index(0), Skin: gltf.Index(0)},
		},
		Skins:  []*gltf.Skin{{Name: "rig", Joints: []uint32{1, 2}, InverseBindMatrices: gltf.Index(0)}},
		Meshes: []*gltf.Mesh{{Name: "body"}},
	}
}

func TestFromDocument(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	s, err := l.FromDocument("rig", riggedDocument())
	require.NoError(t, err)

	assert.Equal(t, 4, s.NodeCount())
	assert.Equal(t, 1, s.SkinCount())

	p, ok := s.Parent(2)
	require.True(t, ok)
	assert.Equal(t, 1, p)
	p, ok = s.Parent(3)
	require.True(t, ok)
	assert.Equal(t, 0, p)

	spine, _ := s.Node(2)
	assert.True(t, common.ApproxEqual4(mgl32.Translate3D(0, 1, 0), spine.Transform.Matrix(), 1e-6))

	hip, _ := s.Node(1)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, hip.Transform.Scale)
	assert.Equal(t, mgl32.QuatIdent(), hip.Transform.Rotation)

	skin, ok := s.Skin(0)
	require.True(t, ok)
	assert.Equal(t, "rig", skin.Name)
	assert.Equal(t, []int{1, 2}, skin.BoneNodeIndices)
	assert.Equal(t, mgl32.Translate3D(0, -2, 0), skin.InverseBindMatrices[1])

	meshes := s.DrawableMeshes()
	require.Len(t, meshes, 1)
	assert.Equal(t, []scene.MeshInstance{{NodeIndex: 3}}, meshes[0].Instances)

	root, ok := s.ModelRootIfInSkeleton(3)
	require.True(t, ok)
	assert.Equal(t, 3, root)

	out, err := skinning.PackBoneTransforms(s, 256)
	require.NoError(t, err)
	require.Len(t, out.AnimatedBoneTransforms, 1)
	for _, m := range out.Matrices(out.AnimatedBoneTransforms[0].Range()) {
		assert.True(t, common.ApproxEqual4(mgl32.Ident4(), m, 1e-5), "%v", m)
	}

	assert.Same(t, s, l.Get("rig"))
	again, err := l.FromDocument("rig", riggedDocument())
	require.NoError(t, err)
	assert.Same(t, s, again)

	l.Evict("rig")
	assert.Nil(t, l.Get("rig"))
	assert.Empty(t, l.Scenes())
}

func TestLoadReader(t *testing.T) {
	doc := riggedDocument()
	data := base64.StdEncoding.EncodeToString(doc.Buffers[0].Data)
	src := fmt.Sprintf(`{
		"asset": {"version": "2.0"},
		"buffers": [{"byteLength": %d, "uri": "data:application/octet-stream;base64,%s"}],
		"bufferViews": [{"buffer": 0, "byteLength": %d}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 2, "type": "MAT4"}],
		"nodes": [
			{"name": "armature", "children": [1, 3]},
			{"name": "hip", "translation": [0, 1, 0], "children": [2]},
			{"name": "spine", "translation": [0, 1, 0]},
			{"name": "body", "mesh": 0, "skin": 0}
		],
		"skins": [{"joints": [1, 2], "inverseBindMatrices": 0}],
		"meshes": [{"name": "body", "primitives": [{"attributes": {}}]}]
	}`, len(doc.Buffers[0].Data), data, len(doc.Buffers[0].Data))

	l := NewLoader(BackendTypeGLTF, WithSceneOptions(scene.WithActive(false)))
	s, err := l.LoadReader("streamed", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "streamed", s.Name())
	assert.False(t, s.Active())

	skin, ok := s.Skin(0)
	require.True(t, ok)
	assert.Equal(t, "skin_0", skin.Name)

	mats, err := skinning.BoneModelSpaceTransforms(s, 3)
	require.NoError(t, err)
	require.Len(t, mats, 2)
	for _, m := range mats {
		assert.True(t, common.ApproxEqual4(mgl32.Ident4(), m, 1e-5), "%v", m)
	}

	_, err = l.LoadReader("broken", strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestMissingInverseBindMatricesDefaultToIdentity(t *testing.T) {
	doc := riggedDocument()
	doc.Skins[0].InverseBindMatrices = nil

	s, err := NewLoader(BackendTypeGLTF).FromDocument("no-ibm", doc)
	require.NoError(t, err)
	skin, _ := s.Skin(0)
	assert.Equal(t, []mgl32.Mat4{mgl32.Ident4(), mgl32.Ident4()}, skin.InverseBindMatrices)
}

// withSparseOverride appends a sparse block to accessor 0 replacing element index with m.
// Indices and values share one buffer view at non-zero offsets.
func withSparseOverride(doc *gltf.Document, index uint16, m mgl32.Mat4) *gltf.Document {
	buf := doc.Buffers[0]
	start := uint32(len(buf.Data))

	sparse := []byte{0, 0, 0, 0}
	sparse = binary.LittleEndian.AppendUint16(sparse, index)
	sparse = append(sparse, 0, 0)
	sparse = append(sparse, model.MarshalBoneMatrices([]mgl32.Mat4{m})...)

	buf.Data = append(buf.Data, sparse...)
	buf.ByteLength = uint32(len(buf.Data))
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteOffset: start, ByteLength: uint32(len(sparse))})

	doc.Accessors[0].Sparse = &gltf.Sparse{
		Count:   1,
		Indices: gltf.SparseIndices{BufferView: 1, ByteOffset: 4, ComponentType: gltf.ComponentUshort},
		Values:  gltf.SparseValues{BufferView: 1, ByteOffset: 8},
	}
	return doc
}

func TestSparseInverseBindMatrices(t *testing.T) {
	override := mgl32.Translate3D(0, -5, 0)

	s, err := NewLoader(BackendTypeGLTF).FromDocument("sparse", withSparseOverride(riggedDocument(), 1, override))
	require.NoError(t, err)
	skin, _ := s.Skin(0)
	assert.Equal(t, []mgl32.Mat4{mgl32.Translate3D(0, -1, 0), override}, skin.InverseBindMatrices)

	doc := withSparseOverride(riggedDocument(), 1, override)
	doc.Accessors[0].BufferView = nil
	s, err = NewLoader(BackendTypeGLTF).FromDocument("sparse-only", doc)
	require.NoError(t, err)
	skin, _ = s.Skin(0)
	assert.Equal(t, []mgl32.Mat4{{}, override}, skin.InverseBindMatrices, "unlisted elements read as zeros")

	doc = withSparseOverride(riggedDocument(), 1, override)
	doc.Accessors[0].Sparse.Values.BufferView = 7
	_, err = NewLoader(BackendTypeGLTF).FromDocument("sparse-dangling", doc)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	doc = withSparseOverride(riggedDocument(), 1, override)
	doc.Accessors[0].Sparse.Values.ByteOffset = 200
	_, err = NewLoader(BackendTypeGLTF).FromDocument("sparse-offset", doc)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	_, err = NewLoader(BackendTypeGLTF).FromDocument("sparse-index", withSparseOverride(riggedDocument(), 2, override))
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestInvalidDocuments(t *testing.T) {
	doc := riggedDocument()
	doc.Accessors[0].Type = gltf.AccessorVec4
	_, err := NewLoader(BackendTypeGLTF).FromDocument("vec4", doc)
	assert.True(t, errors.Is(err, ErrUnsupportedAccessor))

	doc = riggedDocument()
	doc.Nodes[2].Children = []uint32{3}
	_, err = NewLoader(BackendTypeGLTF).FromDocument("two-parents", doc)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	doc = riggedDocument()
	doc.Skins[0].Joints = []uint32{1, 9}
	_, err = NewLoader(BackendTypeGLTF).FromDocument("dangling", doc)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	doc = riggedDocument()
	doc.Buffers[0].Data = doc.Buffers[0].Data[:100]
	_, err = NewLoader(BackendTypeGLTF).FromDocument("truncated", doc)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	_, err = NewLoader(BackendTypeGLTF).FromDocument("nil", nil)
	assert.True(t, errors.Is(err, ErrNoDocument))

	_, err = NewLoader(BackendTypeGLTF).Load("model.obj")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestWithScene(t *testing.T) {
	s := scene.NewScene("cached")
	l := NewLoader(BackendTypeGLTF, WithScene("cached.glb", s))

	got, err := l.Load("cached.glb")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, l.Scenes(), 1)
}

func TestGLTFSceneName(t *testing.T) {
	assert.Equal(t, "hero", gltfExtractSceneName(nil, "/assets/hero.glb"))

	doc := &gltf.Document{Scene: gltf.Index(0), Scenes: []*gltf.Scene{{Name: "Main"}}}
	assert.Equal(t, "Main", gltfExtractSceneName(doc, "/assets/hero.glb"))
}
