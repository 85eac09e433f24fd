package cpu

import "errors"

var (
	ErrContextClosed       = errors.New("rtx/cpu: context closed")
	ErrInvalidValue        = errors.New("rtx/cpu: invalid value")
	ErrOutOfMemory         = errors.New("rtx/cpu: out of device memory")
	ErrInvalidPointer      = errors.New("rtx/cpu: invalid device pointer")
	ErrMisalignedAddress   = errors.New("rtx/cpu: misaligned address")
	ErrInvalidHandle       = errors.New("rtx/cpu: invalid traversable handle")
	ErrNotSupported        = errors.New("rtx/cpu: not supported")
	ErrBufferTooSmall      = errors.New("rtx/cpu: buffer too small")
	ErrCorruptAccel        = errors.New("rtx/cpu: corrupt acceleration structure")
	ErrCompileFailed       = errors.New("rtx/cpu: module compilation failed")
	ErrInvalidProgramGroup = errors.New("rtx/cpu: invalid program group")
	ErrLinkFailed          = errors.New("rtx/cpu: pipeline link failed")
	ErrInvalidSbt          = errors.New("rtx/cpu: invalid shader binding table")
	ErrLaunchFailed        = errors.New("rtx/cpu: launch failed")
	ErrTraceDepthExceeded  = errors.New("rtx/cpu: max trace depth exceeded")
	ErrTraversableGraph    = errors.New("rtx/cpu: traversable graph not allowed by pipeline")
)
