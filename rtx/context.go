package rtx

// Opaque handle to a compiled program module.
type Module interface {
	// Release the module. Program groups created from it remain valid.
	Destroy() error
}

// Opaque handle to a program group.
type ProgramGroup interface {
	Kind() ProgramGroupKind
	Destroy() error
}

// Opaque handle to a linked pipeline.
type Pipeline interface {
	Destroy() error
}

// Context exposes a single ray tracing device with a single command stream.
//
// Acceleration builds, compactions and launches are queued on the stream and
// return as soon as they are accepted; the host must call Synchronize before
// depending on their results. Synchronize reports the first error raised by
// the device since the previous call. Uploads and downloads block until all
// previously queued commands have completed.
type Context interface {
	// Devices returns information about the device backing this context.
	Devices() []DeviceInfo

	// Install a callback for diagnostic messages with a level less than or
	// equal to the supplied level.
	SetLogCallback(cb LogCallback, level int)

	// Release the context. Any allocations still live are released.
	Close() error

	Alloc(size uint64) (DevicePtr, error)
	Free(ptr DevicePtr) error
	Upload(dst DevicePtr, src []byte) error
	Download(dst []byte, src DevicePtr) error
	Synchronize() error

	AccelComputeMemoryUsage(opts *AccelBuildOptions, inputs []BuildInput) (AccelBufferSizes, error)
	AccelBuild(opts *AccelBuildOptions, inputs []BuildInput, temp DevicePtr, tempSize uint64, output DevicePtr, outputSize uint64, emitted []AccelEmitDesc) (TraversableHandle, error)
	AccelCompact(input TraversableHandle, output DevicePtr, outputSize uint64) (TraversableHandle, error)

	// Compile a module. The returned string contains the compile log which
	// may be non-empty even when compilation succeeds.
	ModuleCreate(moduleOpts *ModuleCompileOptions, pipelineOpts *PipelineCompileOptions, code []byte) (Module, string, error)
	ProgramGroupCreate(desc ProgramGroupDesc) (ProgramGroup, string, error)
	PipelineCreate(pipelineOpts *PipelineCompileOptions, linkOpts *PipelineLinkOptions, groups []ProgramGroup) (Pipeline, string, error)
	PipelineSetStackSize(pipeline Pipeline, directCallableFromTraversal, directCallableFromState, continuation, maxTraversableGraphDepth uint32) error

	// Write the opaque record header for a program group into header which
	// must be at least SbtRecordHeaderSize bytes long.
	SbtRecordPackHeader(group ProgramGroup, header []byte) error

	Launch(pipeline Pipeline, params DevicePtr, paramsSize uint64, sbt *ShaderBindingTable, width, height, depth uint32) error
}
