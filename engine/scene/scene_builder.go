package scene

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active and should have its bone buffer rebuilt.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithNodes appends initial nodes to the arena in the given order.
// The first node receives index 0 when the scene is otherwise empty.
//
// Parameters:
//   - nodes: the nodes to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithNodes(nodes ...Node) SceneBuilderOption {
	return func(s *scene) {
		for _, n := range nodes {
			s.nodes = append(s.nodes, n.clone())
		}
	}
}

// WithParents records initial parent edges, keyed by child index.
// Edges that reference unknown nodes or would introduce a cycle panic, since they indicate
// a malformed scene description.
//
// Parameters:
//   - parents: parent indices keyed by child index
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithParents(parents map[int]int) SceneBuilderOption {
	return func(s *scene) {
		for child, parent := range parents {
			if err := s.setParent(child, parent); err != nil {
				panic(err)
			}
		}
	}
}
