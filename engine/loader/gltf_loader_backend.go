package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/qmuntal/gltf"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct {
	importer gltfImporter
}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// It delegates to the gltfImporter for parsing and extraction.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Parameters:
//   - sceneOptions: options applied to every imported scene
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend(sceneOptions ...scene.SceneBuilderOption) gltfLoaderBackend {
	return &gltfLoaderBackendImpl{
		importer: newGLTFImporter(sceneOptions...),
	}
}

func (b *gltfLoaderBackendImpl) Load(path string) (scene.Scene, error) {
	return b.importer.Import(path)
}

func (b *gltfLoaderBackendImpl) LoadReader(name string, r io.Reader) (scene.Scene, error) {
	return b.importer.ImportReader(name, r)
}

func (b *gltfLoaderBackendImpl) LoadDocument(name string, doc *gltf.Document) (scene.Scene, error) {
	return b.importer.ImportDocument(name, doc)
}
