package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Scene is the scene graph accessor consumed by the skinning subsystem.
// It owns an arena of nodes addressed by index, a separate child → parent map that forms a
// forest, a table of skins, and the list of drawable meshes with their instancing nodes.
// Scenes can be hot-swapped via the Active flag.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active and should have its bone buffer rebuilt each frame.
	Active() bool

	// SetActive sets whether this scene is active.
	SetActive(active bool)

	// AddNode appends a node to the arena.
	//
	// Parameters:
	//   - n: the node to add
	//
	// Returns:
	//   - int: the new node's index
	AddNode(n Node) int

	// Node retrieves a copy of the node at index.
	//
	// Parameters:
	//   - index: the node index
	//
	// Returns:
	//   - Node: the node
	//   - bool: false if index is out of range
	Node(index int) (Node, bool)

	// NodeCount returns the number of nodes in the arena.
	NodeCount() int

	// SetLocalTransform replaces a node's local transform.
	// This is the hook animation samplers use to pose a skeleton before packing.
	//
	// Parameters:
	//   - index: the node index
	//   - t: the new local transform
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if the node does not exist
	SetLocalTransform(index int, t model.Transform) error

	// SetParent records parent as the parent of child, replacing any previous parent.
	//
	// Parameters:
	//   - child: the child node index
	//   - parent: the parent node index
	//
	// Returns:
	//   - error: ErrIndexOutOfRange for unknown nodes, ErrCycle if the edge would create a cycle
	SetParent(child, parent int) error

	// RemoveParent detaches child from its parent, making it a root of the forest.
	//
	// Parameters:
	//   - child: the child node index
	RemoveParent(child int)

	// Parent looks up the parent of a node.
	//
	// Parameters:
	//   - index: the node index
	//
	// Returns:
	//   - int: the parent node index
	//   - bool: false if the node is a root (or does not exist)
	Parent(index int) (int, bool)

	// ParentIndexMap returns a copy of the child → parent relation.
	//
	// Returns:
	//   - map[int]int: parent indices keyed by child index
	ParentIndexMap() map[int]int

	// WorldTransform composes the local transforms from the forest root down to the node.
	//
	// Parameters:
	//   - index: the node index
	//
	// Returns:
	//   - mgl32.Mat4: the node's world matrix
	//   - error: ErrIndexOutOfRange if the node does not exist
	WorldTransform(index int) (mgl32.Mat4, error)

	// AddSkin appends a skin definition.
	//
	// Parameters:
	//   - s: the skin to add
	//
	// Returns:
	//   - int: the new skin's index
	//   - error: ErrSkinMismatch or ErrIndexOutOfRange if the skin is malformed
	AddSkin(s Skin) (int, error)

	// Skin retrieves the skin at index. The returned slices must not be modified.
	//
	// Parameters:
	//   - index: the skin index
	//
	// Returns:
	//   - Skin: the skin
	//   - bool: false if index is out of range
	Skin(index int) (Skin, bool)

	// SkinCount returns the number of skins.
	SkinCount() int

	// AddMesh registers a drawable mesh with no instances.
	//
	// Parameters:
	//   - name: the mesh identifier
	//
	// Returns:
	//   - int: the new mesh's index
	AddMesh(name string) int

	// AddMeshInstance places a mesh at a node and sets the node's mesh reference.
	//
	// Parameters:
	//   - meshIndex: the mesh index
	//   - nodeIndex: the node index
	//
	// Returns:
	//   - error: ErrIndexOutOfRange for unknown meshes or nodes
	AddMeshInstance(meshIndex, nodeIndex int) error

	// DrawableMeshes returns a copy of the drawable meshes in stable insertion order.
	//
	// Returns:
	//   - []DrawableMesh: the meshes and their instances
	DrawableMeshes() []DrawableMesh

	// ModelRootIfInSkeleton finds the skeleton entry point for a node: the node itself or its
	// closest ancestor that references a skin.
	//
	// Parameters:
	//   - nodeIndex: the node to start from
	//
	// Returns:
	//   - int: the model root node index
	//   - bool: false if neither the node nor any ancestor roots a skin
	ModelRootIfInSkeleton(nodeIndex int) (int, bool)
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name   string
	active bool

	nodes     []Node
	parentMap map[int]int
	skins     []Skin
	meshes    []DrawableMesh
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates a new, empty Scene.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:        &sync.RWMutex{},
		name:      name,
		active:    true,
		parentMap: make(map[int]int),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) AddNode(n Node) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, n.clone())
	return len(s.nodes) - 1
}

func (s *scene) Node(index int) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validNode(index) {
		return Node{}, false
	}
	return s.nodes[index].clone(), true
}

func (s *scene) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *scene) SetLocalTransform(index int, t model.Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validNode(index) {
		return errors.Wrapf(ErrIndexOutOfRange, "node %d", index)
	}
	s.nodes[index].Transform = t
	return nil
}

func (s *scene) SetParent(child, parent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setParent(child, parent)
}

// setParent validates and records a parent edge. Caller must hold the write lock.
func (s *scene) setParent(child, parent int) error {
	if !s.validNode(child) {
		return errors.Wrapf(ErrIndexOutOfRange, "child node %d", child)
	}
	if !s.validNode(parent) {
		return errors.Wrapf(ErrIndexOutOfRange, "parent node %d", parent)
	}

	// Walking up from the new parent must never reach the child.
	for cur, ok := parent, true; ok; cur, ok = s.parentMap[cur] {
		if cur == child {
			return errors.Wrapf(ErrCycle, "node %d under node %d", child, parent)
		}
	}

	s.parentMap[child] = parent
	return nil
}

func (s *scene) RemoveParent(child int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parentMap, child)
}

func (s *scene) Parent(index int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parentMap[index]
	return p, ok
}

func (s *scene) ParentIndexMap() map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[int]int, len(s.parentMap))
	for k, v := range s.parentMap {
		cp[k] = v
	}
	return cp
}

func (s *scene) WorldTransform(index int) (mgl32.Mat4, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validNode(index) {
		return mgl32.Mat4{}, errors.Wrapf(ErrIndexOutOfRange, "node %d", index)
	}

	world := s.nodes[index].Transform.Matrix()
	for p, ok := s.parentMap[index]; ok; p, ok = s.parentMap[p] {
		world = s.nodes[p].Transform.Matrix().Mul4(world)
	}
	return world, nil
}

func (s *scene) AddSkin(sk Skin) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sk.BoneNodeIndices) != len(sk.InverseBindMatrices) {
		return -1, errors.Wrapf(ErrSkinMismatch, "skin %q: %d bones, %d inverse bind matrices",
			sk.Name, len(sk.BoneNodeIndices), len(sk.InverseBindMatrices))
	}
	for i, bone := range sk.BoneNodeIndices {
		if !s.validNode(bone) {
			return -1, errors.Wrapf(ErrIndexOutOfRange, "skin %q: bone %d references node %d", sk.Name, i, bone)
		}
	}

	s.skins = append(s.skins, sk)
	return len(s.skins) - 1, nil
}

func (s *scene) Skin(index int) (Skin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.skins) {
		return Skin{}, false
	}
	return s.skins[index], true
}

func (s *scene) SkinCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.skins)
}

func (s *scene) AddMesh(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes = append(s.meshes, DrawableMesh{Name: name})
	return len(s.meshes) - 1
}

func (s *scene) AddMeshInstance(meshIndex, nodeIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meshIndex < 0 || meshIndex >= len(s.meshes) {
		return errors.Wrapf(ErrIndexOutOfRange, "mesh %d", meshIndex)
	}
	if !s.validNode(nodeIndex) {
		return errors.Wrapf(ErrIndexOutOfRange, "node %d", nodeIndex)
	}

	s.meshes[meshIndex].Instances = append(s.meshes[meshIndex].Instances, MeshInstance{NodeIndex: nodeIndex})
	mi := meshIndex
	s.nodes[nodeIndex].Mesh = &mi
	return nil
}

func (s *scene) DrawableMeshes() []DrawableMesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]DrawableMesh, len(s.meshes))
	for i, m := range s.meshes {
		cp[i] = DrawableMesh{
			Name:      m.Name,
			Instances: append([]MeshInstance(nil), m.Instances...),
		}
	}
	return cp
}

func (s *scene) ModelRootIfInSkeleton(nodeIndex int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validNode(nodeIndex) {
		return -1, false
	}
	for cur, ok := nodeIndex, true; ok; cur, ok = s.parentMap[cur] {
		if s.nodes[cur].Skin != nil {
			return cur, true
		}
	}
	return -1, false
}

// validNode reports whether index addresses a node. Caller must hold a lock.
func (s *scene) validNode(index int) bool {
	return index >= 0 && index < len(s.nodes)
}
