package tracer

import "errors"

var (
	ErrNoDevice        = errors.New("tracer: no ray tracing device available")
	ErrNoGeometry      = errors.New("tracer: no geometry groups to instance")
	ErrPixelBufferSize = errors.New("tracer: pixel buffer size does not match frame size")
	ErrNotAssembled    = errors.New("tracer: pipeline has not been assembled")
	ErrClosed          = errors.New("tracer: renderer is closed")
)

// CompileError is returned when the backend rejects the device code or
// the pipeline. Log contains the backend diagnostics for the failed stage.
type CompileError struct {
	Stage string
	Log   string
	Err   error
}

func (e *CompileError) Error() string {
	if e.Log == "" {
		return "tracer: " + e.Stage + ": " + e.Err.Error()
	}
	return "tracer: " + e.Stage + ": " + e.Err.Error() + "\n" + e.Log
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
