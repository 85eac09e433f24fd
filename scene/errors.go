package scene

import "errors"

var (
	ErrInvalidScene   = errors.New("scene: invalid scene")
	ErrDuplicateAsset = errors.New("scene: asset already added")
)
