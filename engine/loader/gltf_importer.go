package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	sceneOptions []scene.SceneBuilderOption
}

// gltfImporter defines the interface for orchestrating a full glTF/GLB import.
// It combines the parser and the skeleton extractor to produce a scene graph.
type gltfImporter interface {
	// Import loads a glTF/GLB file and builds a scene from it.
	//
	// Parameters:
	//   - path: the file path to the glTF or GLB file
	//
	// Returns:
	//   - scene.Scene: the populated scene
	//   - error: error if import fails
	Import(path string) (scene.Scene, error)

	// ImportReader decodes a glTF JSON or GLB stream and builds a scene from it.
	//
	// Parameters:
	//   - name: the scene name
	//   - r: the reader providing glTF/GLB data
	//
	// Returns:
	//   - scene.Scene: the populated scene
	//   - error: error if import fails
	ImportReader(name string, r io.Reader) (scene.Scene, error)

	// ImportDocument builds a scene from an already decoded document.
	//
	// Parameters:
	//   - name: the scene name
	//   - doc: the glTF document
	//
	// Returns:
	//   - scene.Scene: the populated scene
	//   - error: error if the document is malformed
	ImportDocument(name string, doc *gltf.Document) (scene.Scene, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
//
// Parameters:
//   - sceneOptions: options applied to every scene the importer creates
//
// Returns:
//   - gltfImporter: the importer
func newGLTFImporter(sceneOptions ...scene.SceneBuilderOption) gltfImporter {
	return &gltfImporterImpl{sceneOptions: sceneOptions}
}

func (imp *gltfImporterImpl) Import(path string) (scene.Scene, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, err
	}
	return imp.importFromParser(parser, gltfExtractSceneName(parser.Document(), path))
}

func (imp *gltfImporterImpl) ImportReader(name string, r io.Reader) (scene.Scene, error) {
	parser := newGLTFParser()
	if err := parser.ParseReader(r); err != nil {
		return nil, err
	}
	return imp.importFromParser(parser, name)
}

func (imp *gltfImporterImpl) ImportDocument(name string, doc *gltf.Document) (scene.Scene, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	return imp.importFromParser(newGLTFParserForDocument(doc), name)
}

// importFromParser maps the document one to one onto a scene: glTF node i becomes scene node i,
// skin i becomes scene skin i and mesh i becomes drawable mesh i.
func (imp *gltfImporterImpl) importFromParser(parser gltfParser, name string) (scene.Scene, error) {
	doc := parser.Document()
	s := scene.NewScene(name, imp.sceneOptions...)

	for i, n := range doc.Nodes {
		node := scene.NewNode(n.Name, gltfExtractNodeTransform(n))
		if node.Name == "" {
			node.Name = fmt.Sprintf("node_%d", i)
		}
		if n.Skin != nil {
			if int(*n.Skin) >= len(doc.Skins) {
				return nil, errors.Wrapf(ErrInvalidDocument, "node %d: skin %d out of range", i, *n.Skin)
			}
			node = node.WithSkin(int(*n.Skin))
		}
		s.AddNode(node)
	}

	for parent, n := range doc.Nodes {
		for _, child := range n.Children {
			if existing, ok := s.Parent(int(child)); ok {
				return nil, errors.Wrapf(ErrInvalidDocument, "node %d is a child of both %d and %d", child, existing, parent)
			}
			if err := s.SetParent(int(child), parent); err != nil {
				return nil, errors.Wrapf(err, "node %d", parent)
			}
		}
	}

	skins, err := newGLTFSkeletonExtractor(parser).ExtractAllSkins()
	if err != nil {
		return nil, err
	}
	for _, skin := range skins {
		if _, err := s.AddSkin(skin); err != nil {
			return nil, err
		}
	}

	for i, m := range doc.Meshes {
		meshName := m.Name
		if meshName == "" {
			meshName = fmt.Sprintf("mesh_%d", i)
		}
		s.AddMesh(meshName)
	}
	for i, n := range doc.Nodes {
		if n.Mesh == nil {
			continue
		}
		if err := s.AddMeshInstance(int(*n.Mesh), i); err != nil {
			return nil, errors.Wrapf(err, "node %d", i)
		}
	}

	return s, nil
}

// gltfExtractSceneName picks a scene name: the document's default scene name, else the file name.
func gltfExtractSceneName(doc *gltf.Document, fallbackPath string) string {
	if doc != nil && doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
		if name := doc.Scenes[*doc.Scene].Name; name != "" {
			return name
		}
	}
	base := filepath.Base(fallbackPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
