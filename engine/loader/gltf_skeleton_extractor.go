package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

// gltfSkeletonExtractorImpl is the implementation of the gltfSkeletonExtractor interface.
type gltfSkeletonExtractorImpl struct {
	parser gltfParser
}

// gltfSkeletonExtractor converts glTF skins into scene skins.
// Joint order is preserved exactly since vertex joint indices refer to it.
type gltfSkeletonExtractor interface {
	// ExtractSkin extracts a skin by index.
	//
	// Parameters:
	//   - skinIndex: the index of the skin to extract
	//
	// Returns:
	//   - scene.Skin: the skin with node-indexed bones and inverse bind matrices
	//   - error: error if extraction fails
	ExtractSkin(skinIndex int) (scene.Skin, error)

	// ExtractAllSkins extracts all skins in document order.
	//
	// Returns:
	//   - []scene.Skin: all skins
	//   - error: error if any extraction fails
	ExtractAllSkins() ([]scene.Skin, error)
}

var _ gltfSkeletonExtractor = &gltfSkeletonExtractorImpl{}

// newGLTFSkeletonExtractor creates a new skeleton extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfSkeletonExtractor: the skeleton extractor
func newGLTFSkeletonExtractor(parser gltfParser) gltfSkeletonExtractor {
	return &gltfSkeletonExtractorImpl{parser: parser}
}

func (e *gltfSkeletonExtractorImpl) ExtractAllSkins() ([]scene.Skin, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, ErrNoDocument
	}

	skins := make([]scene.Skin, len(doc.Skins))
	for i := range doc.Skins {
		skin, err := e.ExtractSkin(i)
		if err != nil {
			return nil, errors.Wrapf(err, "skin %d", i)
		}
		skins[i] = skin
	}
	return skins, nil
}

func (e *gltfSkeletonExtractorImpl) ExtractSkin(skinIndex int) (scene.Skin, error) {
	doc := e.parser.Document()
	if doc == nil {
		return scene.Skin{}, ErrNoDocument
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return scene.Skin{}, errors.Wrapf(ErrInvalidDocument, "skin index %d out of range", skinIndex)
	}

	src := doc.Skins[skinIndex]

	// Read inverse bind matrices (optional but usually present)
	var inverseBindMatrices []mgl32.Mat4
	if src.InverseBindMatrices != nil {
		var err error
		inverseBindMatrices, err = e.parser.ReadMat4Accessor(*src.InverseBindMatrices)
		if err != nil {
			return scene.Skin{}, errors.Wrap(err, "failed to read inverse bind matrices")
		}
	}

	skin := scene.Skin{
		Name:                src.Name,
		BoneNodeIndices:     make([]int, len(src.Joints)),
		InverseBindMatrices: make([]mgl32.Mat4, len(src.Joints)),
	}
	if skin.Name == "" {
		skin.Name = fmt.Sprintf("skin_%d", skinIndex)
	}

	for i, joint := range src.Joints {
		if int(joint) >= len(doc.Nodes) {
			return scene.Skin{}, errors.Wrapf(ErrInvalidDocument, "joint %d: invalid node index %d", i, joint)
		}
		skin.BoneNodeIndices[i] = int(joint)

		if i < len(inverseBindMatrices) {
			skin.InverseBindMatrices[i] = inverseBindMatrices[i]
		} else {
			skin.InverseBindMatrices[i] = mgl32.Ident4()
		}
	}

	return skin, nil
}

// --- Helper Functions ---

// gltfExtractNodeTransform extracts a TRS transform from a glTF node.
// Nodes carrying a non-identity matrix are decomposed. Zero-valued rotation and scale arrays,
// as left by documents assembled in code, are read as their glTF defaults.
func gltfExtractNodeTransform(node *gltf.Node) model.Transform {
	if node.Matrix != [16]float32{} && node.Matrix != gltfIdentityMatrix() {
		t, r, s := common.DecomposeMatrix(mgl32.Mat4(node.Matrix))
		return model.Transform{Translation: t, Rotation: r, Scale: s}
	}

	rotation := node.Rotation
	if rotation == [4]float32{} {
		rotation = [4]float32{0, 0, 0, 1}
	}
	scale := node.Scale
	if scale == [3]float32{} {
		scale = [3]float32{1, 1, 1}
	}

	return model.NewTransform(node.Translation, rotation, scale)
}

// gltfIdentityMatrix returns a 4x4 identity matrix.
func gltfIdentityMatrix() [16]float32 {
	return [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}
