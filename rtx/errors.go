package rtx

import "errors"

var (
	ErrUnknownBackend = errors.New("rtx: unknown backend")
)
