package skinning

import "github.com/pkg/errors"

var (
	// ErrMissingSkin is returned when a node passed as a model root has no skin reference,
	// or references a skin that does not exist.
	ErrMissingSkin = errors.New("skinning: model root has no skin")

	// ErrSingularTransform is returned when the model root's transform cannot be inverted.
	// The whole packing call fails; no partial buffer is produced.
	ErrSingularTransform = errors.New("skinning: model root transform is not invertible")
)
