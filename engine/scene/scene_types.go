package scene

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

var (
	// ErrIndexOutOfRange is returned when a node, skin or mesh index does not exist.
	ErrIndexOutOfRange = errors.New("scene: index out of range")

	// ErrCycle is returned when a parent assignment would make the node forest cyclic.
	ErrCycle = errors.New("scene: parent assignment would create a cycle")

	// ErrSkinMismatch is returned when a skin's bone list and inverse bind matrices differ in length.
	ErrSkinMismatch = errors.New("scene: bone count does not match inverse bind matrix count")
)

// Node is an element of the scene forest.
// Parent relationships are not stored on the node; they live in the scene's parent map.
// Build nodes with NewNode: the zero Transform has zero scale, so a zero Node is singular.
type Node struct {
	// Name is the node identifier (for debugging).
	Name string

	// Transform is the node's transform relative to its parent.
	Transform model.Transform

	// Skin is the index of the Skin this node roots, or nil if the node is not a skeleton root.
	Skin *int

	// Mesh is the index of the mesh drawn at this node, or nil.
	Mesh *int
}

// NewNode creates a node with the given name and local transform.
//
// Parameters:
//   - name: the node identifier
//   - transform: the local transform
//
// Returns:
//   - Node: the node, with no skin or mesh reference
func NewNode(name string, transform model.Transform) Node {
	return Node{Name: name, Transform: transform}
}

// WithSkin returns a copy of n that roots the given skin.
//
// Parameters:
//   - skinIndex: the index of the skin
//
// Returns:
//   - Node: the updated copy
func (n Node) WithSkin(skinIndex int) Node {
	n.Skin = &skinIndex
	return n
}

// WithMesh returns a copy of n that draws the given mesh.
//
// Parameters:
//   - meshIndex: the index of the mesh
//
// Returns:
//   - Node: the updated copy
func (n Node) WithMesh(meshIndex int) Node {
	n.Mesh = &meshIndex
	return n
}

// clone returns a copy of n that shares no pointers with it.
func (n Node) clone() Node {
	if n.Skin != nil {
		n = n.WithSkin(*n.Skin)
	}
	if n.Mesh != nil {
		n = n.WithMesh(*n.Mesh)
	}
	return n
}

// Skin is a skeleton definition shared by any number of mesh instances.
type Skin struct {
	// Name is the skin identifier.
	Name string

	// BoneNodeIndices are the skeleton's joints. Order is significant: vertex skinning data
	// indexes bones by their position in this slice.
	BoneNodeIndices []int

	// InverseBindMatrices holds one matrix per bone, index-aligned with BoneNodeIndices.
	// Each maps model space into that bone's bind space.
	InverseBindMatrices []mgl32.Mat4
}

// BoneCount returns the number of bones in the skin.
//
// Returns:
//   - int: the bone count
func (s Skin) BoneCount() int {
	return len(s.BoneNodeIndices)
}

// MeshInstance is one placement of a mesh in the scene.
type MeshInstance struct {
	// NodeIndex is the node the mesh is drawn at.
	NodeIndex int
}

// DrawableMesh is a mesh together with every node that draws it.
type DrawableMesh struct {
	// Name is the mesh identifier.
	Name string

	// Instances are the placements of this mesh, in insertion order.
	Instances []MeshInstance
}
