package cpu

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/achilleasa/prism/rtx"
)

const (
	groupHeaderMagic = 0x48475250 // PRGH

	// The only module format version understood by this backend.
	moduleVersion = 1

	// Used when PipelineSetStackSize is never called.
	defaultMaxTraversableGraphDepth = 2

	logTagCompiler = "COMPILER"
	logTagLinker   = "LINKER"
)

// A compiled module. Module blobs are text manifests that name a module
// registered with rtx.RegisterModule and declare its exported entry points
// and launch parameter block:
//
//	.module <name>
//	.version 1
//	.params <variable> <size in bytes>
//	.entry <entry function name>
type module struct {
	name       string
	paramsName string
	paramsSize uint64
	entries    map[string]rtx.Program
	opts       rtx.PipelineCompileOptions
	destroyed  int32
}

func (m *module) Destroy() error {
	atomic.StoreInt32(&m.destroyed, 1)
	return nil
}

type program struct {
	module *module
	name   string
	fn     rtx.Program
}

type programGroup struct {
	id        uint32
	kind      rtx.ProgramGroupKind
	raygen    *program
	miss      *program
	exception *program
	ch        *program
	ah        *program
	is        *program

	// The module options shared by all programs in this group.
	opts *rtx.PipelineCompileOptions

	destroyed int32
}

func (g *programGroup) Kind() rtx.ProgramGroupKind {
	return g.kind
}

func (g *programGroup) Destroy() error {
	atomic.StoreInt32(&g.destroyed, 1)
	return nil
}

type pipeline struct {
	compileOpts rtx.PipelineCompileOptions
	linkOpts    rtx.PipelineLinkOptions
	groups      map[uint32]*programGroup
	paramsSize  uint64

	maxTraversableGraphDepth uint32
	continuationStackSize    uint32

	destroyed int32
}

func (p *pipeline) Destroy() error {
	atomic.StoreInt32(&p.destroyed, 1)
	return nil
}

func validatePipelineOptions(opts *rtx.PipelineCompileOptions) error {
	if opts == nil {
		return fmt.Errorf("%w: missing pipeline compile options", ErrInvalidValue)
	}
	if opts.NumPayloadValues < 0 || opts.NumPayloadValues > rtx.MaxPayloadValues {
		return fmt.Errorf("%w: %d payload values; the device supports up to %d", ErrInvalidValue, opts.NumPayloadValues, rtx.MaxPayloadValues)
	}
	if opts.NumAttributeValues < 0 || opts.NumAttributeValues > rtx.MaxAttributeValues {
		return fmt.Errorf("%w: %d attribute values; the device supports up to %d", ErrInvalidValue, opts.NumAttributeValues, rtx.MaxAttributeValues)
	}
	if opts.UsesMotionBlur {
		return fmt.Errorf("%w: motion blur", ErrNotSupported)
	}
	if opts.LaunchParamsVariableName == "" {
		return fmt.Errorf("%w: missing launch params variable name", ErrInvalidValue)
	}
	return nil
}

// Compile a module manifest. Diagnostics are returned as the compile log
// and also forwarded to the log callback.
func (c *Context) ModuleCreate(moduleOpts *rtx.ModuleCompileOptions, pipelineOpts *rtx.PipelineCompileOptions, code []byte) (rtx.Module, string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, "", err
	}
	if moduleOpts == nil || moduleOpts.MaxRegisterCount < 0 {
		return nil, "", fmt.Errorf("%w: module compile options", ErrInvalidValue)
	}
	if err := validatePipelineOptions(pipelineOpts); err != nil {
		return nil, "", err
	}

	var compileLog bytes.Buffer
	fail := func(lineNum int, format string, args ...interface{}) (rtx.Module, string, error) {
		msg := fmt.Sprintf(format, args...)
		if lineNum > 0 {
			msg = fmt.Sprintf("line %d: %s", lineNum, msg)
		}
		fmt.Fprintf(&compileLog, "error: %s\n", msg)
		c.log(2, logTagCompiler, "%s", msg)
		return nil, compileLog.String(), fmt.Errorf("%w: %s", ErrCompileFailed, msg)
	}

	m := &module{
		opts: *pipelineOpts,
	}
	declared := make([]string, 0)
	version := 0

	scanner := bufio.NewScanner(bytes.NewReader(code))
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if commentIndex := strings.Index(line, "#"); commentIndex != -1 {
			line = strings.TrimSpace(line[:commentIndex])
		}
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		switch tokens[0] {
		case ".module":
			if len(tokens) != 2 {
				return fail(lineNum, "unsupported syntax for '.module'; expected 1 argument; got %d", len(tokens)-1)
			}
			m.name = tokens[1]
		case ".version":
			if len(tokens) != 2 {
				return fail(lineNum, "unsupported syntax for '.version'; expected 1 argument; got %d", len(tokens)-1)
			}
			v, err := strconv.Atoi(tokens[1])
			if err != nil {
				return fail(lineNum, "could not parse version %q", tokens[1])
			}
			version = v
		case ".params":
			if len(tokens) != 3 {
				return fail(lineNum, "unsupported syntax for '.params'; expected 2 arguments; got %d", len(tokens)-1)
			}
			size, err := strconv.ParseUint(tokens[2], 10, 64)
			if err != nil || size == 0 {
				return fail(lineNum, "invalid launch params size %q", tokens[2])
			}
			m.paramsName, m.paramsSize = tokens[1], size
		case ".entry":
			if len(tokens) != 2 {
				return fail(lineNum, "unsupported syntax for '.entry'; expected 1 argument; got %d", len(tokens)-1)
			}
			declared = append(declared, tokens[1])
		default:
			return fail(lineNum, "unknown directive %q", tokens[0])
		}
	}

	if version != moduleVersion {
		return fail(0, "unsupported module version %d", version)
	}
	if m.name == "" {
		return fail(0, "missing '.module' directive")
	}
	if m.paramsName != pipelineOpts.LaunchParamsVariableName {
		return fail(0, "launch params variable %q not found in module %q", pipelineOpts.LaunchParamsVariableName, m.name)
	}

	registered, exists := rtx.LookupModule(m.name)
	if !exists {
		return fail(0, "module %q has no registered device code", m.name)
	}

	m.entries = make(map[string]rtx.Program, len(declared))
	for _, entry := range declared {
		fn, exists := registered[entry]
		if !exists {
			return fail(0, "entry function %q is not defined in module %q", entry, m.name)
		}
		m.entries[entry] = fn
	}

	// Registered programs that the manifest does not export are not fatal.
	var unexported []string
	for entry := range registered {
		if _, exists := m.entries[entry]; !exists {
			unexported = append(unexported, entry)
		}
	}
	sort.Strings(unexported)
	for _, entry := range unexported {
		msg := fmt.Sprintf("entry function %q of module %q is not exported and will be ignored", entry, m.name)
		fmt.Fprintf(&compileLog, "warning: %s\n", msg)
		c.log(2, logTagCompiler, "%s", msg)
	}

	return m, compileLog.String(), nil
}

func (c *Context) lookupProgram(mod rtx.Module, entry string, prefix string) (*program, error) {
	if mod == nil && entry == "" {
		return nil, nil
	}
	m, ok := mod.(*module)
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: entry %q has no module", ErrInvalidProgramGroup, entry)
	}
	if atomic.LoadInt32(&m.destroyed) != 0 {
		return nil, fmt.Errorf("%w: module %q has been destroyed", ErrInvalidProgramGroup, m.name)
	}
	if !strings.HasPrefix(entry, prefix) {
		return nil, fmt.Errorf("%w: entry function %q must be prefixed with %q", ErrInvalidProgramGroup, entry, prefix)
	}
	fn, exists := m.entries[entry]
	if !exists {
		return nil, fmt.Errorf("%w: entry function %q not found in module %q", ErrInvalidProgramGroup, entry, m.name)
	}
	return &program{module: m, name: entry, fn: fn}, nil
}

// Create a program group.
func (c *Context) ProgramGroupCreate(desc rtx.ProgramGroupDesc) (rtx.ProgramGroup, string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, "", err
	}

	var (
		g   = &programGroup{kind: desc.Kind}
		err error
	)
	switch desc.Kind {
	case rtx.ProgramGroupKindRaygen:
		if g.raygen, err = c.lookupProgram(desc.Raygen.Module, desc.Raygen.EntryFunctionName, "__raygen__"); err == nil && g.raygen == nil {
			err = fmt.Errorf("%w: raygen group requires an entry function", ErrInvalidProgramGroup)
		}
	case rtx.ProgramGroupKindMiss:
		g.miss, err = c.lookupProgram(desc.Miss.Module, desc.Miss.EntryFunctionName, "__miss__")
	case rtx.ProgramGroupKindException:
		if g.exception, err = c.lookupProgram(desc.Exception.Module, desc.Exception.EntryFunctionName, "__exception__"); err == nil && g.exception == nil {
			err = fmt.Errorf("%w: exception group requires an entry function", ErrInvalidProgramGroup)
		}
	case rtx.ProgramGroupKindHitgroup:
		hg := desc.Hitgroup
		if g.ch, err = c.lookupProgram(hg.ModuleCH, hg.EntryFunctionNameCH, "__closesthit__"); err != nil {
			break
		}
		if g.ah, err = c.lookupProgram(hg.ModuleAH, hg.EntryFunctionNameAH, "__anyhit__"); err != nil {
			break
		}
		g.is, err = c.lookupProgram(hg.ModuleIS, hg.EntryFunctionNameIS, "__intersection__")
	default:
		err = fmt.Errorf("%w: unknown kind %d", ErrInvalidProgramGroup, desc.Kind)
	}
	if err != nil {
		c.log(2, logTagCompiler, "%v", err)
		return nil, err.Error() + "\n", err
	}

	// All programs in a group must come from modules compiled with the
	// same pipeline options.
	for _, prog := range []*program{g.raygen, g.miss, g.exception, g.ch, g.ah, g.is} {
		if prog == nil {
			continue
		}
		if g.opts == nil {
			g.opts = &prog.module.opts
			continue
		}
		if *g.opts != prog.module.opts {
			err = fmt.Errorf("%w: modules were compiled with different pipeline options", ErrInvalidProgramGroup)
			return nil, err.Error() + "\n", err
		}
	}

	c.groupMutex.Lock()
	g.id = c.nextGroupID
	c.nextGroupID++
	c.groups[g.id] = g
	c.groupMutex.Unlock()

	return g, "", nil
}

// Link program groups into a pipeline.
func (c *Context) PipelineCreate(pipelineOpts *rtx.PipelineCompileOptions, linkOpts *rtx.PipelineLinkOptions, groups []rtx.ProgramGroup) (rtx.Pipeline, string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, "", err
	}
	if err := validatePipelineOptions(pipelineOpts); err != nil {
		return nil, "", err
	}
	if linkOpts == nil {
		return nil, "", fmt.Errorf("%w: missing pipeline link options", ErrInvalidValue)
	}

	fail := func(format string, args ...interface{}) (rtx.Pipeline, string, error) {
		msg := fmt.Sprintf(format, args...)
		c.log(2, logTagLinker, "%s", msg)
		return nil, "error: " + msg + "\n", fmt.Errorf("%w: %s", ErrLinkFailed, msg)
	}

	if linkOpts.MaxTraceDepth > maxTraceDepth {
		return fail("max trace depth %d exceeds the device limit of %d", linkOpts.MaxTraceDepth, maxTraceDepth)
	}
	if len(groups) == 0 {
		return fail("no program groups")
	}

	p := &pipeline{
		compileOpts:              *pipelineOpts,
		linkOpts:                 *linkOpts,
		groups:                   make(map[uint32]*programGroup, len(groups)),
		maxTraversableGraphDepth: defaultMaxTraversableGraphDepth,
	}

	for index, pg := range groups {
		g, ok := pg.(*programGroup)
		if !ok || g == nil {
			return fail("program group %d was not created by this context", index)
		}
		if atomic.LoadInt32(&g.destroyed) != 0 {
			return fail("program group %d has been destroyed", index)
		}
		if g.opts != nil && *g.opts != *pipelineOpts {
			return fail("program group %d was compiled with different pipeline options", index)
		}
		p.groups[g.id] = g

		for _, prog := range []*program{g.raygen, g.miss, g.exception, g.ch, g.ah, g.is} {
			if prog != nil && prog.module.paramsSize > p.paramsSize {
				p.paramsSize = prog.module.paramsSize
			}
		}
	}

	return p, "", nil
}

// Configure pipeline stack sizes. The software device uses the traversable
// graph depth to validate traces; stack sizes are recorded but not enforced.
func (c *Context) PipelineSetStackSize(pl rtx.Pipeline, directCallableFromTraversal, directCallableFromState, continuation, maxTraversableGraphDepth uint32) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	p, ok := pl.(*pipeline)
	if !ok || p == nil {
		return fmt.Errorf("%w: unknown pipeline", ErrInvalidValue)
	}
	if maxTraversableGraphDepth == 0 {
		return fmt.Errorf("%w: max traversable graph depth must be at least 1", ErrInvalidValue)
	}
	p.maxTraversableGraphDepth = maxTraversableGraphDepth
	p.continuationStackSize = continuation
	return nil
}

// The record header layout used by this backend.
type recordHeader struct {
	Magic   uint32
	GroupID uint32
	Kind    uint32
	Pad     [5]uint32
}

// Write the record header for a program group.
func (c *Context) SbtRecordPackHeader(pg rtx.ProgramGroup, header []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	g, ok := pg.(*programGroup)
	if !ok || g == nil {
		return fmt.Errorf("%w: unknown program group", ErrInvalidProgramGroup)
	}
	if len(header) < rtx.SbtRecordHeaderSize {
		return fmt.Errorf("%w: header buffer has %d bytes; need %d", ErrBufferTooSmall, len(header), rtx.SbtRecordHeaderSize)
	}

	var buf bytes.Buffer
	binary.Write(&buf, byteOrder, recordHeader{
		Magic:   groupHeaderMagic,
		GroupID: g.id,
		Kind:    uint32(g.kind),
	})
	copy(header, buf.Bytes())
	return nil
}

// Decode a record header and resolve it to a program group linked into p.
func (p *pipeline) decodeRecordHeader(header []byte) (*programGroup, error) {
	var h recordHeader
	if err := binary.Read(bytes.NewReader(header), byteOrder, &h); err != nil {
		return nil, err
	}
	if h.Magic != groupHeaderMagic {
		return nil, fmt.Errorf("%w: record header was not packed by this device", ErrInvalidSbt)
	}
	g, exists := p.groups[h.GroupID]
	if !exists {
		return nil, fmt.Errorf("%w: record references program group %d which is not linked into the pipeline", ErrInvalidSbt, h.GroupID)
	}
	return g, nil
}
