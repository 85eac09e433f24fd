package tracer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/rtx/cpu"
	"github.com/achilleasa/prism/scene"
	"github.com/achilleasa/prism/types"
)

var errInjected = errors.New("injected failure")

// A context that counts backend calls and fails the failAt-th call to
// failOp.
type faultyContext struct {
	*cpu.Context

	failOp    string
	failAt    int
	noDevices bool
	closed    bool
	calls     map[string]int
}

func newFaultyContext(t *testing.T, failOp string, failAt int) *faultyContext {
	ctx, err := cpu.New(cpu.WithWorkers(4))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctx.Close() })

	return &faultyContext{
		Context: ctx,
		failOp:  failOp,
		failAt:  failAt,
		calls:   make(map[string]int),
	}
}

func (f *faultyContext) fail(op string) error {
	f.calls[op]++
	if op == f.failOp && f.calls[op] == f.failAt {
		return fmt.Errorf("%w: %s call %d", errInjected, op, f.failAt)
	}
	return nil
}

func (f *faultyContext) Close() error {
	f.closed = true
	return f.Context.Close()
}

func (f *faultyContext) Devices() []rtx.DeviceInfo {
	if f.noDevices {
		return nil
	}
	return f.Context.Devices()
}

func (f *faultyContext) Alloc(size uint64) (rtx.DevicePtr, error) {
	if err := f.fail("Alloc"); err != nil {
		return 0, err
	}
	return f.Context.Alloc(size)
}

func (f *faultyContext) Synchronize() error {
	if err := f.fail("Synchronize"); err != nil {
		return err
	}
	return f.Context.Synchronize()
}

func (f *faultyContext) AccelComputeMemoryUsage(opts *rtx.AccelBuildOptions, inputs []rtx.BuildInput) (rtx.AccelBufferSizes, error) {
	if err := f.fail("AccelComputeMemoryUsage"); err != nil {
		return rtx.AccelBufferSizes{}, err
	}
	return f.Context.AccelComputeMemoryUsage(opts, inputs)
}

func (f *faultyContext) AccelBuild(opts *rtx.AccelBuildOptions, inputs []rtx.BuildInput, temp rtx.DevicePtr, tempSize uint64, output rtx.DevicePtr, outputSize uint64, emitted []rtx.AccelEmitDesc) (rtx.TraversableHandle, error) {
	if err := f.fail("AccelBuild"); err != nil {
		return 0, err
	}
	return f.Context.AccelBuild(opts, inputs, temp, tempSize, output, outputSize, emitted)
}

func (f *faultyContext) AccelCompact(input rtx.TraversableHandle, output rtx.DevicePtr, outputSize uint64) (rtx.TraversableHandle, error) {
	if err := f.fail("AccelCompact"); err != nil {
		return 0, err
	}
	return f.Context.AccelCompact(input, output, outputSize)
}

func (f *faultyContext) ModuleCreate(moduleOpts *rtx.ModuleCompileOptions, pipelineOpts *rtx.PipelineCompileOptions, code []byte) (rtx.Module, string, error) {
	if err := f.fail("ModuleCreate"); err != nil {
		return nil, "line 1: injected diagnostic", err
	}
	return f.Context.ModuleCreate(moduleOpts, pipelineOpts, code)
}

func (f *faultyContext) ProgramGroupCreate(desc rtx.ProgramGroupDesc) (rtx.ProgramGroup, string, error) {
	if err := f.fail("ProgramGroupCreate"); err != nil {
		return nil, "", err
	}
	return f.Context.ProgramGroupCreate(desc)
}

func (f *faultyContext) PipelineCreate(pipelineOpts *rtx.PipelineCompileOptions, linkOpts *rtx.PipelineLinkOptions, groups []rtx.ProgramGroup) (rtx.Pipeline, string, error) {
	if err := f.fail("PipelineCreate"); err != nil {
		return nil, "", err
	}
	return f.Context.PipelineCreate(pipelineOpts, linkOpts, groups)
}

func (f *faultyContext) PipelineSetStackSize(pipeline rtx.Pipeline, directCallableFromTraversal, directCallableFromState, continuation, maxTraversableGraphDepth uint32) error {
	if err := f.fail("PipelineSetStackSize"); err != nil {
		return err
	}
	return f.Context.PipelineSetStackSize(pipeline, directCallableFromTraversal, directCallableFromState, continuation, maxTraversableGraphDepth)
}

func (f *faultyContext) SbtRecordPackHeader(group rtx.ProgramGroup, header []byte) error {
	if err := f.fail("SbtRecordPackHeader"); err != nil {
		return err
	}
	return f.Context.SbtRecordPackHeader(group, header)
}

func (f *faultyContext) Launch(pipeline rtx.Pipeline, params rtx.DevicePtr, paramsSize uint64, sbt *rtx.ShaderBindingTable, width, height, depth uint32) error {
	if err := f.fail("Launch"); err != nil {
		return err
	}
	return f.Context.Launch(pipeline, params, paramsSize, sbt, width, height, depth)
}

func expectNoAllocations(t *testing.T, ctx *faultyContext) {
	t.Helper()
	if allocs, bytes := ctx.MemoryStats(); allocs != 0 || bytes != 0 {
		t.Fatalf("expected all device memory to be released; got %d allocations (%d bytes)", allocs, bytes)
	}
}

// A scene with two meshes and two spheres.
func multiAssetScene() *scene.Scene {
	sc := scene.NewScene()

	red := scene.NewMesh("red", types.XYZ(1, 0, 0))
	red.AddUnitCube(types.XYZ(-2, 0, 0))
	sc.AddMesh(red)

	green := scene.NewMesh("green", types.XYZ(0, 1, 0))
	green.AddCube(types.XYZ(2, 0, 0), 0.5)
	sc.AddMesh(green)

	sc.AddSphere(scene.NewSphere(0.5, types.XYZ(0, 0, 1)))
	sc.AddSphere(scene.NewSphere(0.25, types.XYZ(1, 1, 0)))
	return sc
}
