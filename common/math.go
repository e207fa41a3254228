package common

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Mat4Size is the size in bytes of a 4x4 float32 matrix as laid out in GPU memory.
const Mat4Size = 16 * 4

// Invert4 computes the inverse of a 4x4 column-major matrix.
// If the matrix is singular (determinant is zero) or contains non-finite values, the zero
// matrix is returned together with false.
//
// Parameters:
//   - m: source matrix (column-major)
//
// Returns:
//   - mgl32.Mat4: the inverse of m, or the zero matrix if m is not invertible
//   - bool: true if the matrix was successfully inverted, false if singular
func Invert4(m mgl32.Mat4) (mgl32.Mat4, bool) {
	if !Finite4(m) {
		return mgl32.Mat4{}, false
	}
	det := m.Det()
	if det == 0 || math.IsNaN(float64(det)) || math.IsInf(float64(det), 0) {
		return mgl32.Mat4{}, false
	}
	inv := m.Inv()
	if !Finite4(inv) {
		return mgl32.Mat4{}, false
	}
	return inv, true
}

// Finite4 reports whether every element of m is a finite number.
//
// Parameters:
//   - m: the matrix to check
//
// Returns:
//   - bool: false if any element is NaN or ±Inf
func Finite4(m mgl32.Mat4) bool {
	for _, v := range m {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ReadMat4 reads 16 little-endian float32 values in column-major order from src.
//
// Parameters:
//   - src: source byte slice, at least Mat4Size bytes long
//
// Returns:
//   - mgl32.Mat4: the decoded matrix
func ReadMat4(src []byte) mgl32.Mat4 {
	_ = src[Mat4Size-1]
	var m mgl32.Mat4
	for i := 0; i < 16; i++ {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4 : (i+1)*4]))
	}
	return m
}

// AlignPadding returns the number of zero bytes that must follow a buffer of length n so
// that the next write begins at a multiple of alignment.
// An alignment of 0 or 1 never requires padding.
//
// Parameters:
//   - n: the current buffer length in bytes
//   - alignment: the required byte alignment
//
// Returns:
//   - int: the padding length in bytes, in the range [0, alignment)
func AlignPadding(n int, alignment uint32) int {
	if alignment <= 1 {
		return 0
	}
	a := int(alignment)
	return (a - n%a) % a
}

// AlignUp rounds n up to the next multiple of alignment.
//
// Parameters:
//   - n: the value to round
//   - alignment: the byte alignment
//
// Returns:
//   - int: n rounded up to a multiple of alignment
func AlignUp(n int, alignment uint32) int {
	return n + AlignPadding(n, alignment)
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
//
// Parameters:
//   - v: the value to check
//
// Returns:
//   - bool: true if v is 1, 2, 4, 8, ...
func IsPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// DecomposeMatrix decomposes a 4x4 column-major matrix into translation, rotation (quaternion), and scale.
// This is an approximation that assumes no shear.
//
// Parameters:
//   - m: the matrix to decompose
//
// Returns:
//   - mgl32.Vec3: translation
//   - mgl32.Quat: rotation
//   - mgl32.Vec3: scale
func DecomposeMatrix(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3) {
	translation := mgl32.Vec3{m[12], m[13], m[14]}

	sx := mgl32.Vec3{m[0], m[1], m[2]}.Len()
	sy := mgl32.Vec3{m[4], m[5], m[6]}.Len()
	sz := mgl32.Vec3{m[8], m[9], m[10]}.Len()
	scale := mgl32.Vec3{sx, sy, sz}

	// Avoid division by zero
	if sx < 0.0001 {
		sx = 1
	}
	if sy < 0.0001 {
		sy = 1
	}
	if sz < 0.0001 {
		sz = 1
	}

	rot := mgl32.Mat3{
		m[0] / sx, m[1] / sx, m[2] / sx,
		m[4] / sy, m[5] / sy, m[6] / sy,
		m[8] / sz, m[9] / sz, m[10] / sz,
	}

	return translation, mgl32.Mat4ToQuat(rot.Mat4()).Normalize(), scale
}

// ApproxEqual4 reports whether every element of a and b differs by at most tol.
//
// Parameters:
//   - a, b: the matrices to compare
//   - tol: the absolute tolerance per element
//
// Returns:
//   - bool: true if the matrices are element-wise within tol
func ApproxEqual4(a, b mgl32.Mat4, tol float32) bool {
	for i := range a {
		if d := a[i] - b[i]; d > tol || d < -tol {
			return false
		}
	}
	return true
}
