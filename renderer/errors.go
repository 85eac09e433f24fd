package renderer

import "errors"

var (
	ErrSceneNotDefined    = errors.New("renderer: no scene defined")
	ErrInvalidFrameSize   = errors.New("renderer: invalid frame size")
	ErrUnsupportedFormat  = errors.New("renderer: unsupported image format")
	ErrOutputNotSpecified = errors.New("renderer: no output file specified")
)
