package skinning

import (
	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// SceneGraph is the read-only view of a scene consumed by the resolver and the packer.
// scene.Scene satisfies it.
type SceneGraph interface {
	// Node retrieves the node at index.
	Node(index int) (scene.Node, bool)

	// Parent looks up the parent of a node; false for roots.
	Parent(index int) (int, bool)

	// Skin retrieves the skin at index.
	Skin(index int) (scene.Skin, bool)

	// DrawableMeshes returns every drawable mesh in stable order.
	DrawableMeshes() []scene.DrawableMesh

	// ModelRootIfInSkeleton returns the skeleton root for a mesh instance node, if any.
	ModelRootIfInSkeleton(nodeIndex int) (int, bool)
}

// Ensure scene.Scene implements SceneGraph interface.
var _ SceneGraph = scene.Scene(nil)

// skinOf returns the skin index and skin referenced by a model root node.
func skinOf(g SceneGraph, modelRoot int) (int, scene.Skin, error) {
	root, ok := g.Node(modelRoot)
	if !ok {
		return -1, scene.Skin{}, errors.Wrapf(ErrMissingSkin, "model root node %d does not exist", modelRoot)
	}
	if root.Skin == nil {
		return -1, scene.Skin{}, errors.Wrapf(ErrMissingSkin, "node %d (%q)", modelRoot, root.Name)
	}
	skin, ok := g.Skin(*root.Skin)
	if !ok {
		return -1, scene.Skin{}, errors.Wrapf(ErrMissingSkin, "node %d (%q) references skin %d", modelRoot, root.Name, *root.Skin)
	}
	return *root.Skin, skin, nil
}

// BoneModelSpaceTransforms computes, for every bone of the skin rooted at modelRoot, the
// matrix that carries a bind-pose vertex to its current position in the model root's space.
//
// For bone i the result is inverse(root.Transform) * boneToWorld * InverseBindMatrices[i],
// where boneToWorld is the product of local transforms from the bone up through its bone
// ancestors, ending with the first ancestor that is not a bone (usually the model root).
//
// Parameters:
//   - g: the scene graph to read
//   - modelRoot: index of the node that references the skin
//
// Returns:
//   - []mgl32.Mat4: one matrix per bone in skin order; empty (not nil) for a skin with no bones
//   - error: ErrMissingSkin if the root has no skin, ErrSingularTransform if its transform cannot be inverted
func BoneModelSpaceTransforms(g SceneGraph, modelRoot int) ([]mgl32.Mat4, error) {
	_, skin, err := skinOf(g, modelRoot)
	if err != nil {
		return nil, err
	}
	return resolveSkin(g, modelRoot, skin)
}

// resolveSkin is BoneModelSpaceTransforms with the skin already looked up.
func resolveSkin(g SceneGraph, modelRoot int, skin scene.Skin) ([]mgl32.Mat4, error) {
	root, _ := g.Node(modelRoot)

	if len(skin.BoneNodeIndices) != len(skin.InverseBindMatrices) {
		return nil, errors.Wrapf(scene.ErrSkinMismatch, "skin %q", skin.Name)
	}

	worldToModel, ok := common.Invert4(root.Transform.Matrix())
	if !ok {
		return nil, errors.Wrapf(ErrSingularTransform, "model root node %d (%q)", modelRoot, root.Name)
	}

	// Parent edges restricted to the skin's bones. Walking it from a bone climbs through
	// bone ancestors and stops one step past the topmost bone.
	boneParents := make(map[int]int, len(skin.BoneNodeIndices))
	for _, bone := range skin.BoneNodeIndices {
		if p, ok := g.Parent(bone); ok {
			boneParents[bone] = p
		}
	}

	out := make([]mgl32.Mat4, 0, len(skin.BoneNodeIndices))
	var ancestry []int
	for i, bone := range skin.BoneNodeIndices {
		ancestry = ancestryList(boneParents, bone, ancestry[:0])

		boneToWorld := mgl32.Ident4()
		for j := len(ancestry) - 1; j >= 0; j-- {
			n, ok := g.Node(ancestry[j])
			if !ok {
				return nil, errors.Wrapf(scene.ErrIndexOutOfRange, "skin %q: bone %d ancestor node %d", skin.Name, i, ancestry[j])
			}
			boneToWorld = boneToWorld.Mul4(n.Transform.Matrix())
		}

		out = append(out, worldToModel.Mul4(boneToWorld).Mul4(skin.InverseBindMatrices[i]))
	}
	return out, nil
}

// ancestryList appends node and its ancestors reachable through parents to dst, nearest first.
// The walk is bounded by the size of parents, so a malformed cyclic map cannot loop forever.
func ancestryList(parents map[int]int, node int, dst []int) []int {
	dst = append(dst, node)
	for cur, steps := node, 0; steps < len(parents); steps++ {
		p, ok := parents[cur]
		if !ok {
			break
		}
		dst = append(dst, p)
		cur = p
	}
	return dst
}
