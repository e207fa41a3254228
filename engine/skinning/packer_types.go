package skinning

import (
	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/go-gl/mathgl/mgl32"
)

// BufferRange is a half-open byte range [Start, End) within a packed bone buffer.
type BufferRange struct {
	Start uint64
	End   uint64
}

// Len returns the length of the range in bytes.
func (r BufferRange) Len() uint64 {
	return r.End - r.Start
}

// MatrixCount returns how many 64-byte matrices fit in the range.
func (r BufferRange) MatrixCount() int {
	return int(r.Len() / common.Mat4Size)
}

// BoneTransformSlice ties one drawable mesh to the byte range holding its skeleton's matrices.
// Meshes that share a skin share the same range.
type BoneTransformSlice struct {
	// DrawableMeshIndex is the position of the mesh in the scene's drawable mesh list.
	DrawableMeshIndex int

	// StartIndex is the inclusive byte offset of the first matrix.
	StartIndex uint64

	// EndIndex is the exclusive byte offset just past the last matrix. Padding is not included.
	EndIndex uint64
}

// Range returns the slice's byte range.
func (s BoneTransformSlice) Range() BufferRange {
	return BufferRange{Start: s.StartIndex, End: s.EndIndex}
}

// AllBoneTransforms is the result of one packing call: the bytes to upload and the
// per-mesh ranges a renderer binds when drawing.
type AllBoneTransforms struct {
	// Buffer holds the identity region followed by each unique skin's matrices, each padded
	// so the following skin begins at a multiple of the packing alignment.
	Buffer []byte

	// AnimatedBoneTransforms has one entry per participating drawable mesh, in mesh order.
	AnimatedBoneTransforms []BoneTransformSlice

	// IdentitySlice is the range of the identity matrices at the start of Buffer.
	IdentitySlice BufferRange

	// UniqueSkins is the number of distinct skins written to Buffer.
	UniqueSkins int
}

// SliceFor finds the bone range for a drawable mesh.
//
// Parameters:
//   - meshIndex: the drawable mesh index
//
// Returns:
//   - BoneTransformSlice: the mesh's range
//   - bool: false if the mesh is not skinned
func (a *AllBoneTransforms) SliceFor(meshIndex int) (BoneTransformSlice, bool) {
	for _, s := range a.AnimatedBoneTransforms {
		if s.DrawableMeshIndex == meshIndex {
			return s, true
		}
	}
	return BoneTransformSlice{}, false
}

// Matrix decodes the matrix stored at a byte offset.
//
// Parameters:
//   - offset: byte offset of the matrix
//
// Returns:
//   - mgl32.Mat4: the decoded matrix
//   - bool: false if fewer than 64 bytes remain at offset
func (a *AllBoneTransforms) Matrix(offset uint64) (mgl32.Mat4, bool) {
	if offset+common.Mat4Size > uint64(len(a.Buffer)) {
		return mgl32.Mat4{}, false
	}
	return common.ReadMat4(a.Buffer[offset:]), true
}

// Matrices decodes every matrix in a range.
//
// Parameters:
//   - r: the byte range to decode
//
// Returns:
//   - []mgl32.Mat4: the matrices in buffer order
func (a *AllBoneTransforms) Matrices(r BufferRange) []mgl32.Mat4 {
	out := make([]mgl32.Mat4, 0, r.MatrixCount())
	for off := r.Start; off+common.Mat4Size <= r.End; off += common.Mat4Size {
		m, ok := a.Matrix(off)
		if !ok {
			break
		}
		out = append(out, m)
	}
	return out
}

// AlignmentSource reports the device's minimum storage-buffer offset alignment.
type AlignmentSource interface {
	MinStorageBufferOffsetAlignment() uint32
}

// FixedAlignment is an AlignmentSource with a constant value, for headless packing and tests.
type FixedAlignment uint32

// MinStorageBufferOffsetAlignment returns the fixed alignment.
func (a FixedAlignment) MinStorageBufferOffsetAlignment() uint32 {
	return uint32(a)
}
