package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

var (
	// ErrNoDocument is returned when an extractor runs before a document was parsed.
	ErrNoDocument = errors.New("loader: no document loaded")

	// ErrInvalidDocument is returned for structurally broken documents (dangling indices,
	// nodes with two parents, truncated buffers).
	ErrInvalidDocument = errors.New("loader: invalid document")

	// ErrUnsupportedAccessor is returned when inverse bind matrices are not stored as a MAT4
	// float accessor.
	ErrUnsupportedAccessor = errors.New("loader: unsupported accessor")

	// ErrUnsupportedFormat is returned for file extensions no backend handles.
	ErrUnsupportedFormat = errors.New("loader: unsupported model format")
)

// loaderBackend defines the generic interface for loading scenes from files or streams.
// Concrete implementations (e.g., gltfLoaderBackendImpl) handle format-specific details.
type loaderBackend interface {
	// Load performs a full scene import from the given file path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - scene.Scene: the imported scene
	//   - error: error if loading fails
	Load(path string) (scene.Scene, error)

	// LoadReader imports a scene from a reader stream.
	//
	// Parameters:
	//   - name: the scene name
	//   - r: the reader providing model data
	//
	// Returns:
	//   - scene.Scene: the imported scene
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (scene.Scene, error)

	// LoadDocument imports a scene from a decoded glTF document.
	//
	// Parameters:
	//   - name: the scene name
	//   - doc: the document
	//
	// Returns:
	//   - scene.Scene: the imported scene
	//   - error: error if the document is malformed
	LoadDocument(name string, doc *gltf.Document) (scene.Scene, error)
}
