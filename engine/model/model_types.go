package model

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform represents a decomposed local transform (translation, rotation, scale).
// Animation samplers write Transforms into the scene; the skinning resolver reads them.
type Transform struct {
	// Translation is the position offset.
	Translation mgl32.Vec3

	// Rotation is the orientation as a unit quaternion.
	Rotation mgl32.Quat

	// Scale is the scale factor along each axis.
	Scale mgl32.Vec3
}

// IdentityTransform returns a Transform with no translation, no rotation and unit scale.
//
// Returns:
//   - Transform: the identity transform
func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// NewTransform builds a Transform from raw glTF-style arrays.
// The rotation is given as (x, y, z, w).
//
// Parameters:
//   - translation: the position offset
//   - rotation: the quaternion as (x, y, z, w)
//   - scale: the per-axis scale
//
// Returns:
//   - Transform: the assembled transform
func NewTransform(translation [3]float32, rotation [4]float32, scale [3]float32) Transform {
	return Transform{
		Translation: translation,
		Rotation:    mgl32.Quat{W: rotation[3], V: mgl32.Vec3{rotation[0], rotation[1], rotation[2]}},
		Scale:       scale,
	}
}

// Translated returns a Transform that only translates.
//
// Parameters:
//   - x, y, z: the translation along each axis
//
// Returns:
//   - Transform: the translating transform
func Translated(x, y, z float32) Transform {
	t := IdentityTransform()
	t.Translation = mgl32.Vec3{x, y, z}
	return t
}

// Matrix composes the transform into a column-major 4x4 matrix: M = T * R * S.
//
// Returns:
//   - mgl32.Mat4: the composed matrix
func (t Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(rotate).Mul4(scale)
}
