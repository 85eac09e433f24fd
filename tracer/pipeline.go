package tracer

import (
	"strings"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/tracer/devicecode"
)

// Stack sizes and traversal depth passed to PipelineSetStackSize.
const (
	directCallableStackSizeFromTraversal = 2 * 1024
	directCallableStackSizeFromState     = 2 * 1024
	continuationStackSize                = 2 * 1024
	maxTraversableGraphDepth             = 1
)

// PipelineAssembler compiles the device code module and links the program
// groups used by the renderer into a pipeline.
type PipelineAssembler struct {
	logger log.Logger
	ctx    rtx.Context

	ModuleOptions  rtx.ModuleCompileOptions
	CompileOptions rtx.PipelineCompileOptions
	LinkOptions    rtx.PipelineLinkOptions
	MaxGraphDepth  uint32

	module   rtx.Module
	raygen   rtx.ProgramGroup
	miss     rtx.ProgramGroup
	hitgroup rtx.ProgramGroup
	pipeline rtx.Pipeline
}

// Create an assembler with the default options for the renderer's device
// code.
func NewPipelineAssembler(ctx rtx.Context) *PipelineAssembler {
	return &PipelineAssembler{
		logger: log.New("pipeline"),
		ctx:    ctx,
		ModuleOptions: rtx.ModuleCompileOptions{
			MaxRegisterCount: 50,
			OptLevel:         rtx.CompileOptimizationDefault,
			DebugLevel:       rtx.CompileDebugLevelNone,
		},
		CompileOptions: rtx.PipelineCompileOptions{
			UsesMotionBlur:           false,
			TraversableGraphFlags:    rtx.TraversableGraphFlagAllowAny,
			NumPayloadValues:         4,
			NumAttributeValues:       4,
			ExceptionFlags:           rtx.ExceptionFlagNone,
			LaunchParamsVariableName: devicecode.LaunchParamsVariable,
		},
		LinkOptions: rtx.PipelineLinkOptions{
			MaxTraceDepth: 2,
			DebugLevel:    rtx.CompileDebugLevelNone,
		},
		MaxGraphDepth: maxTraversableGraphDepth,
	}
}

// Compile the module, create the raygen, miss and hitgroup program groups
// and link them. Any objects created before a failure are destroyed.
func (p *PipelineAssembler) Assemble(code []byte) (err error) {
	defer func() {
		if err != nil {
			p.Destroy()
		}
	}()

	var compileLog string
	p.module, compileLog, err = p.ctx.ModuleCreate(&p.ModuleOptions, &p.CompileOptions, code)
	p.forwardLog("module", compileLog)
	if err != nil {
		return &CompileError{Stage: "module create", Log: compileLog, Err: err}
	}

	p.raygen, err = p.createGroup("raygen", rtx.ProgramGroupDesc{
		Kind:   rtx.ProgramGroupKindRaygen,
		Raygen: rtx.ProgramDesc{Module: p.module, EntryFunctionName: devicecode.EntryRaygen},
	})
	if err != nil {
		return err
	}

	p.miss, err = p.createGroup("miss", rtx.ProgramGroupDesc{
		Kind: rtx.ProgramGroupKindMiss,
		Miss: rtx.ProgramDesc{Module: p.module, EntryFunctionName: devicecode.EntryMiss},
	})
	if err != nil {
		return err
	}

	p.hitgroup, err = p.createGroup("hitgroup", rtx.ProgramGroupDesc{
		Kind: rtx.ProgramGroupKindHitgroup,
		Hitgroup: rtx.HitgroupDesc{
			ModuleCH:            p.module,
			EntryFunctionNameCH: devicecode.EntryClosestHit,
			ModuleAH:            p.module,
			EntryFunctionNameAH: devicecode.EntryAnyHit,
			ModuleIS:            p.module,
			EntryFunctionNameIS: devicecode.EntryIntersection,
		},
	})
	if err != nil {
		return err
	}

	var linkLog string
	p.pipeline, linkLog, err = p.ctx.PipelineCreate(&p.CompileOptions, &p.LinkOptions, []rtx.ProgramGroup{p.raygen, p.miss, p.hitgroup})
	p.forwardLog("pipeline", linkLog)
	if err != nil {
		return &CompileError{Stage: "pipeline create", Log: linkLog, Err: err}
	}

	err = p.ctx.PipelineSetStackSize(
		p.pipeline,
		directCallableStackSizeFromTraversal,
		directCallableStackSizeFromState,
		continuationStackSize,
		p.MaxGraphDepth,
	)
	if err != nil {
		return &CompileError{Stage: "pipeline stack size", Err: err}
	}

	return nil
}

func (p *PipelineAssembler) createGroup(name string, desc rtx.ProgramGroupDesc) (rtx.ProgramGroup, error) {
	group, groupLog, err := p.ctx.ProgramGroupCreate(desc)
	p.forwardLog(name+" program group", groupLog)
	if err != nil {
		return nil, &CompileError{Stage: name + " program group create", Log: groupLog, Err: err}
	}
	return group, nil
}

// Compile and link logs are advisory.
func (p *PipelineAssembler) forwardLog(stage, compileLog string) {
	compileLog = strings.TrimSpace(compileLog)
	if compileLog == "" {
		return
	}
	for _, line := range strings.Split(compileLog, "\n") {
		p.logger.Noticef("%s: %s", stage, line)
	}
}

// Get the linked pipeline or nil if Assemble has not succeeded.
func (p *PipelineAssembler) Pipeline() rtx.Pipeline {
	return p.pipeline
}

func (p *PipelineAssembler) RaygenGroup() rtx.ProgramGroup {
	return p.raygen
}

func (p *PipelineAssembler) MissGroup() rtx.ProgramGroup {
	return p.miss
}

func (p *PipelineAssembler) HitgroupGroup() rtx.ProgramGroup {
	return p.hitgroup
}

// Destroy the pipeline, the program groups and the module in reverse
// creation order. The first error is returned.
func (p *PipelineAssembler) Destroy() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.pipeline != nil {
		keep(p.pipeline.Destroy())
		p.pipeline = nil
	}
	for _, group := range []*rtx.ProgramGroup{&p.hitgroup, &p.miss, &p.raygen} {
		if *group != nil {
			keep((*group).Destroy())
			*group = nil
		}
	}
	if p.module != nil {
		keep(p.module.Destroy())
		p.module = nil
	}
	return firstErr
}
