package model

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// IdentityBoneCount is the number of identity matrices written at the start of every bone
// buffer. Draws of unskinned geometry that share the skinned bind group layout read from
// this region.
const IdentityBoneCount = 4

// GPUBoneMatrixSource is the canonical WGSL definition of the BoneMatrix struct read by
// skinned vertex shaders. Matches GPUBoneMatrix layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/bone_matrix.wgsl
var GPUBoneMatrixSource string

// GPUBoneMatrix is the GPU-aligned representation of a single bone's model-space transform.
// Matches the WGSL BoneMatrix struct layout exactly (see GPUBoneMatrixSource).
// Size: 64 bytes (mat4x4<f32> = 16 × float32, column-major, little endian, no padding).
//
// This layout is a compatibility contract with the consuming shader: bone buffers are a
// sequence of GPUBoneMatrix records, identity region first, indexed by the bone index taken
// from per-vertex skinning data.
type GPUBoneMatrix struct {
	Matrix [16]float32 // offset 0: 4×4 bone model-space transform, column-major (64 bytes)
}

// NewGPUBoneMatrix wraps a matrix for GPU upload.
//
// Parameters:
//   - m: the bone's model-space transform
//
// Returns:
//   - GPUBoneMatrix: the GPU record
func NewGPUBoneMatrix(m mgl32.Mat4) GPUBoneMatrix {
	return GPUBoneMatrix{Matrix: m}
}

// Size returns the size of the GPUBoneMatrix struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUBoneMatrix) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBoneMatrix struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUBoneMatrix) Marshal() []byte {
	return g.AppendMarshal(make([]byte, 0, 64))
}

// AppendMarshal appends the 64-byte serialized form of the matrix to buf.
//
// Parameters:
//   - buf: the buffer to append to
//
// Returns:
//   - []byte: the extended buffer
func (g *GPUBoneMatrix) AppendMarshal(buf []byte) []byte {
	for i := 0; i < 16; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(g.Matrix[i]))
	}
	return buf
}

// MarshalBoneMatrices serializes a sequence of bone transforms back to back.
//
// Parameters:
//   - matrices: the transforms in bone order
//
// Returns:
//   - []byte: len(matrices) × 64 bytes
func MarshalBoneMatrices(matrices []mgl32.Mat4) []byte {
	buf := make([]byte, 0, len(matrices)*64)
	for _, m := range matrices {
		g := NewGPUBoneMatrix(m)
		buf = g.AppendMarshal(buf)
	}
	return buf
}
