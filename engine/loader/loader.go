package loader

import (
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	sceneCache   map[string]scene.Scene
	sceneOptions []scene.SceneBuilderOption

	backend loaderBackend
}

// Loader defines the public-facing interface for loading and caching scene graphs.
// It abstracts the file format (glTF, GLB) behind a generic backend and manages a cache of
// previously loaded scenes. Every node, skin and mesh of the file is carried over by index, so
// a loaded scene is ready for bone packing.
type Loader interface {
	// Load imports a model file and caches the result.
	// If the scene is already cached (by file path), the cached version is returned.
	// The backend is selected based on the file extension (.gltf/.glb → glTF backend).
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - scene.Scene: the loaded and cached scene
	//   - error: error if loading fails
	Load(path string) (scene.Scene, error)

	// LoadReader imports a scene from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key and scene name
	//   - r: the reader providing glTF JSON or GLB data
	//
	// Returns:
	//   - scene.Scene: the loaded scene
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (scene.Scene, error)

	// FromDocument builds a scene from a decoded document and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key and scene name
	//   - doc: the glTF document
	//
	// Returns:
	//   - scene.Scene: the built scene
	//   - error: error if the document is malformed
	FromDocument(name string, doc *gltf.Document) (scene.Scene, error)

	// Get retrieves a cached scene by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - scene.Scene: the cached scene or nil
	Get(name string) scene.Scene

	// Scenes returns a copy of the scene cache.
	//
	// Returns:
	//   - map[string]scene.Scene: all cached scenes keyed by name
	Scenes() map[string]scene.Scene

	// Evict removes a scene from the cache.
	//
	// Parameters:
	//   - name: the cache key to remove
	Evict(name string)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:         sync.RWMutex{},
		sceneCache: make(map[string]scene.Scene),
	}

	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeGLTF:
		fallthrough
	default:
		l.backend = newGLTFLoaderBackend(l.sceneOptions...)
	}

	return l
}

func (l *loader) Load(path string) (scene.Scene, error) {
	return l.cached(path, func() (scene.Scene, error) {
		backend, err := l.resolveBackend(path)
		if err != nil {
			return nil, err
		}
		s, err := backend.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
		return s, nil
	})
}

func (l *loader) LoadReader(name string, r io.Reader) (scene.Scene, error) {
	return l.cached(name, func() (scene.Scene, error) {
		s, err := l.backend.LoadReader(name, r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load from reader %q", name)
		}
		return s, nil
	})
}

func (l *loader) FromDocument(name string, doc *gltf.Document) (scene.Scene, error) {
	return l.cached(name, func() (scene.Scene, error) {
		return l.backend.LoadDocument(name, doc)
	})
}

func (l *loader) Get(name string) scene.Scene {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sceneCache[name]
}

func (l *loader) Scenes() map[string]scene.Scene {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]scene.Scene, len(l.sceneCache))
	for k, v := range l.sceneCache {
		result[k] = v
	}
	return result
}

func (l *loader) Evict(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sceneCache, name)
}

// cached returns the scene stored under key, or builds, stores and returns it.
func (l *loader) cached(key string, build func() (scene.Scene, error)) (scene.Scene, error) {
	l.mu.RLock()
	if s, ok := l.sceneCache[key]; ok {
		l.mu.RUnlock()
		return s, nil
	}
	l.mu.RUnlock()

	s, err := build()
	if err != nil {
		return nil, err
	}

	common.Logger().Debug("scene loaded",
		"key", key,
		"nodes", s.NodeCount(),
		"skins", s.SkinCount(),
		"meshes", len(s.DrawableMeshes()),
	)

	l.mu.Lock()
	l.sceneCache[key] = s
	l.mu.Unlock()

	return s, nil
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		return l.backend, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
}
