package loader

import (
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	document *gltf.Document
}

// gltfParser loads a glTF document and reads typed data out of its accessors.
type gltfParser interface {
	// Document returns the parsed document, or nil if nothing has been parsed.
	//
	// Returns:
	//   - *gltf.Document: the document
	Document() *gltf.Document

	// Parse loads a .gltf or .glb file. External buffers are resolved relative to the file.
	//
	// Parameters:
	//   - path: the file path
	//
	// Returns:
	//   - error: error if the file cannot be read or decoded
	Parse(path string) error

	// ParseReader decodes a glTF JSON or GLB stream. Buffers must be embedded.
	//
	// Parameters:
	//   - r: the reader providing glTF data
	//
	// Returns:
	//   - error: error if decoding fails
	ParseReader(r io.Reader) error

	// ReadMat4Accessor reads every element of a MAT4 float accessor.
	//
	// Parameters:
	//   - accessorIndex: the accessor index
	//
	// Returns:
	//   - []mgl32.Mat4: the matrices, column-major
	//   - error: ErrUnsupportedAccessor if the accessor is not a MAT4 float accessor
	ReadMat4Accessor(accessorIndex uint32) ([]mgl32.Mat4, error)
}

var _ gltfParser = &gltfParserImpl{}

// newGLTFParser creates a parser with no document loaded.
func newGLTFParser() gltfParser {
	return &gltfParserImpl{}
}

// newGLTFParserForDocument wraps an already decoded document.
func newGLTFParserForDocument(doc *gltf.Document) gltfParser {
	return &gltfParserImpl{document: doc}
}

func (p *gltfParserImpl) Document() *gltf.Document {
	return p.document
}

func (p *gltfParserImpl) Parse(path string) error {
	doc, err := gltf.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	p.document = doc
	return nil
}

func (p *gltfParserImpl) ParseReader(r io.Reader) error {
	doc := &gltf.Document{}
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return errors.Wrap(err, "failed to decode gltf")
	}
	p.document = doc
	return nil
}

func (p *gltfParserImpl) ReadMat4Accessor(accessorIndex uint32) ([]mgl32.Mat4, error) {
	doc := p.document
	if doc == nil {
		return nil, ErrNoDocument
	}
	if int(accessorIndex) >= len(doc.Accessors) {
		return nil, errors.Wrapf(ErrInvalidDocument, "accessor index %d out of range", accessorIndex)
	}

	acc := doc.Accessors[accessorIndex]
	if acc.Type != gltf.AccessorMat4 || acc.ComponentType != gltf.ComponentFloat {
		return nil, errors.Wrapf(ErrUnsupportedAccessor, "accessor %d is not MAT4 FLOAT", accessorIndex)
	}

	view, isolated, err := isolateAccessor(doc, acc)
	if err != nil {
		return nil, errors.Wrapf(err, "accessor %d", accessorIndex)
	}
	data, err := modeler.ReadAccessor(view, isolated, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDocument, "accessor %d: %v", accessorIndex, err)
	}

	result := make([]mgl32.Mat4, acc.Count)
	if data == nil {
		// An accessor without a buffer view or sparse data reads as zeros.
		return result, nil
	}
	for i, m := range data.([][4][4]float32) {
		result[i] = mat4FromRows(m)
	}
	return result, nil
}

// mat4FromRows converts the modeler's [row][col] matrix to column-major mgl32.Mat4.
func mat4FromRows(m [4][4]float32) mgl32.Mat4 {
	var out mgl32.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = m[r][c]
		}
	}
	return out
}

// isolateAccessor copies the buffer views acc refers to into a standalone document, checking
// every index and offset the reader slices with, sparse indices included. modeler looks up the
// sparse values stride by the values byte offset, so the values view is re-based to start at
// the values and placed at index 0.
//
// Parameters:
//   - doc: the source document
//   - acc: the accessor to read
//
// Returns:
//   - *gltf.Document: a document holding only the accessor's buffer views
//   - *gltf.Accessor: a copy of acc pointing into that document
//   - error: ErrInvalidDocument if an index or offset is out of range
func isolateAccessor(doc *gltf.Document, acc *gltf.Accessor) (*gltf.Document, *gltf.Accessor, error) {
	view := func(index, byteOffset uint32) (*gltf.BufferView, error) {
		if int(index) >= len(doc.BufferViews) {
			return nil, errors.Wrapf(ErrInvalidDocument, "buffer view %d out of range", index)
		}
		bv := doc.BufferViews[index]
		if int(bv.Buffer) >= len(doc.Buffers) {
			return nil, errors.Wrapf(ErrInvalidDocument, "buffer view %d: buffer %d out of range", index, bv.Buffer)
		}
		if byteOffset > bv.ByteLength {
			return nil, errors.Wrapf(ErrInvalidDocument, "buffer view %d: offset %d past its end", index, byteOffset)
		}
		return bv, nil
	}

	isolated := *acc
	out := &gltf.Document{Buffers: doc.Buffers, BufferViews: []*gltf.BufferView{{}}}

	if acc.BufferView != nil {
		bv, err := view(*acc.BufferView, acc.ByteOffset)
		if err != nil {
			return nil, nil, err
		}
		isolated.BufferView = gltf.Index(uint32(len(out.BufferViews)))
		out.BufferViews = append(out.BufferViews, bv)
	}

	if acc.Sparse != nil {
		sparse := *acc.Sparse

		indices, err := view(sparse.Indices.BufferView, sparse.Indices.ByteOffset)
		if err != nil {
			return nil, nil, err
		}
		sparse.Indices.BufferView = uint32(len(out.BufferViews))
		out.BufferViews = append(out.BufferViews, indices)

		ids, err := modeler.ReadIndices(out, &gltf.Accessor{
			BufferView:    gltf.Index(sparse.Indices.BufferView),
			ByteOffset:    sparse.Indices.ByteOffset,
			Count:         sparse.Count,
			ComponentType: sparse.Indices.ComponentType,
			Type:          gltf.AccessorScalar,
		}, nil)
		if err != nil {
			return nil, nil, errors.Wrapf(ErrInvalidDocument, "sparse indices: %v", err)
		}
		for _, id := range ids {
			if id >= acc.Count {
				return nil, nil, errors.Wrapf(ErrInvalidDocument, "sparse index %d out of range for %d elements", id, acc.Count)
			}
		}

		values, err := view(sparse.Values.BufferView, sparse.Values.ByteOffset)
		if err != nil {
			return nil, nil, err
		}
		out.BufferViews[0] = &gltf.BufferView{
			Buffer:     values.Buffer,
			ByteOffset: values.ByteOffset + sparse.Values.ByteOffset,
			ByteLength: values.ByteLength - sparse.Values.ByteOffset,
		}
		sparse.Values = gltf.SparseValues{BufferView: 0}
		isolated.Sparse = &sparse
	}

	return out, &isolated, nil
}
