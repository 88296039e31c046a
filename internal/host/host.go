// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package host loads extension scripts into an isolated Lua state and
// invokes their entry points.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apix-dev/apix/internal/capability"
	"github.com/apix-dev/apix/internal/extension"
	"github.com/apix-dev/apix/internal/plan"
	"github.com/apix-dev/apix/internal/sandbox"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	lua "github.com/yuin/gopher-lua"
)

// Entry point names an extension may define.
const (
	EntryCreate  = "create"
	EntryExtend  = "extend"
	EntryMigrate = "migrate"
	EntryInfo    = "info"
)

var entryPoints = []string{EntryCreate, EntryExtend, EntryMigrate, EntryInfo}

// Globals removed from the base library so scripts cannot reach the host
// filesystem or load other code.
var removedGlobals = []string{"dofile", "loadfile", "require", "module"}

// Spec identifies the extension version to load and the project it acts on.
type Spec struct {
	Name          string
	Version       string
	ExtensionsDir string
	ProjectRoot   string
}

type options struct {
	execTimeout time.Duration
	logger      *slog.Logger
	reserved    []string
	planOpts    []plan.Option
	surfaceOpts []capability.Option
}

// Option configures Load.
type Option func(*options)

// WithExecTimeout bounds each entry point call and the top-level chunk.
// A zero or negative value means no timeout.
func WithExecTimeout(d time.Duration) Option {
	return func(o *options) { o.execTimeout = d }
}

// WithLogger sets the logger for host diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReserved hides project sub-trees from the extension.
func WithReserved(paths ...string) Option {
	return func(o *options) { o.reserved = append(o.reserved, paths...) }
}

// WithPlanOptions configures the plan that collects proposals.
func WithPlanOptions(opts ...plan.Option) Option {
	return func(o *options) { o.planOpts = append(o.planOpts, opts...) }
}

// WithSurfaceOptions configures the ctx capability surface.
func WithSurfaceOptions(opts ...capability.Option) Option {
	return func(o *options) { o.surfaceOpts = append(o.surfaceOpts, opts...) }
}

// Instance is one loaded extension. It is bound to a single invocation: the
// Lua state, plan and surface are never reused across loads.
type Instance struct {
	mu          sync.Mutex
	spec        Spec
	L           *lua.LState
	entries     map[string]*lua.LFunction
	view        *sandbox.View
	plan        *plan.Plan
	surface     *capability.Surface
	files       *fileTracker
	dataDir     string
	execTimeout time.Duration
	logger      *slog.Logger
}

// Load reads the extension source, prepares its data directory and runs the
// script's top-level chunk once.
func Load(ctx context.Context, spec Spec, opts ...Option) (*Instance, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(spec.Name) == "" {
		return nil, apixerr.New(apixerr.CodeExtensionLoadNotFound, "extension name must not be empty")
	}

	layout := extension.Layout{Root: spec.ExtensionsDir}
	sourcePath := layout.SourcePath(spec.Name, spec.Version)
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeExtensionLoadNotFound, "reading extension source",
			apixerr.FieldExtension(spec.Name), apixerr.FieldVersion(spec.Version), apixerr.FieldPath(sourcePath))
	}

	dataDir := layout.DataDir(spec.Name)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeExtensionDataDirFailure, "creating data directory",
			apixerr.FieldExtension(spec.Name), apixerr.FieldPath(dataDir))
	}

	view, err := sandbox.New(spec.ProjectRoot, []string{dataDir}, sandbox.WithReserved(o.reserved...))
	if err != nil {
		return nil, err
	}

	p := plan.New(view, o.planOpts...)
	surface := capability.New(spec.Name, p, o.surfaceOpts...)

	inst := &Instance{
		spec:        spec,
		entries:     make(map[string]*lua.LFunction),
		view:        view,
		plan:        p,
		surface:     surface,
		files:       &fileTracker{},
		dataDir:     dataDir,
		execTimeout: o.execTimeout,
		logger:      o.logger.With("extension", spec.Name, "version", spec.Version),
	}

	L, err := newState()
	if err != nil {
		return nil, err
	}
	inst.L = L

	L.SetGlobal("print", L.NewFunction(inst.luaPrint))
	L.SetGlobal("ctx", surface.Register(L))
	L.SetGlobal("fs", registerFS(L, view, dataDir, inst.files))

	if err := inst.runChunk(ctx, string(source), sourcePath); err != nil {
		inst.Close()
		return nil, err
	}

	for _, name := range entryPoints {
		if fn, ok := L.GetGlobal(name).(*lua.LFunction); ok {
			inst.entries[name] = fn
		}
	}
	inst.logger.Debug("extension loaded", "exports", inst.Exports())

	return inst, nil
}

func newState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, apixerr.Wrapf(err, apixerr.CodeInternalFailure, "opening lua library %q", lib.name)
		}
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L, nil
}

func (i *Instance) runChunk(ctx context.Context, source, name string) error {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	i.L.SetContext(ctx)
	defer i.L.RemoveContext()

	fn, err := i.L.Load(strings.NewReader(source), "@"+name)
	if err != nil {
		return apixerr.Wrap(err, apixerr.CodeExtensionRuntimeFailure, "compiling extension source",
			apixerr.FieldExtension(i.spec.Name), apixerr.FieldPath(name))
	}
	i.L.Push(fn)
	if err := i.L.PCall(0, lua.MultRet, nil); err != nil {
		return i.scriptError(ctx, "top-level chunk", err)
	}
	i.L.SetTop(0)
	return nil
}

func (i *Instance) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.execTimeout > 0 {
		return context.WithTimeout(ctx, i.execTimeout)
	}
	return context.WithCancel(ctx)
}

func (i *Instance) scriptError(ctx context.Context, where string, err error) error {
	attrs := []apixerr.Attr{apixerr.FieldExtension(i.spec.Name), apixerr.FieldVersion(i.spec.Version)}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apixerr.Wrap(err, apixerr.CodeExtensionRuntimeTimeout,
			fmt.Sprintf("%s exceeded %s", where, i.execTimeout), attrs...)
	}

	diagnostic := err.Error()
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		diagnostic = apiErr.Object.String()
	}
	return apixerr.New(apixerr.CodeExtensionRuntimeFailure,
		fmt.Sprintf("%s failed: %s", where, diagnostic), attrs...)
}

// Name returns the extension name.
func (i *Instance) Name() string { return i.spec.Name }

// Version returns the loaded version.
func (i *Instance) Version() string { return i.spec.Version }

// DataDir returns the extension's private data directory.
func (i *Instance) DataDir() string { return i.dataDir }

// View returns the filesystem view exposed to the script.
func (i *Instance) View() *sandbox.View { return i.view }

// Plan returns the plan receiving the script's proposals.
func (i *Instance) Plan() *plan.Plan { return i.plan }

// Surface returns the ctx capability surface.
func (i *Instance) Surface() *capability.Surface { return i.surface }

// Exports lists the entry points the script defines, sorted.
func (i *Instance) Exports() []string {
	names := make([]string, 0, len(i.entries))
	for name := range i.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the script defines the entry point.
func (i *Instance) Has(name string) bool {
	_, ok := i.entries[name]
	return ok
}

// RequireExports fails unless every named entry point is defined.
func (i *Instance) RequireExports(names ...string) error {
	var missing []string
	for _, name := range names {
		if !i.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apixerr.New(apixerr.CodeExtensionEntryPointNotFound,
			fmt.Sprintf("extension %s does not define %s", i.spec.Name, strings.Join(missing, ", ")),
			apixerr.FieldExtension(i.spec.Name))
	}
	return nil
}

// Create calls create(project_name).
func (i *Instance) Create(ctx context.Context, projectName string) (int, error) {
	ret, err := i.call(ctx, EntryCreate, lua.LString(projectName))
	if err != nil {
		return 0, err
	}
	return i.status(EntryCreate, ret)
}

// Extend calls extend(args) with args as a sequence table.
func (i *Instance) Extend(ctx context.Context, args []string) (int, error) {
	tbl := new(lua.LTable)
	for _, a := range args {
		tbl.Append(lua.LString(a))
	}
	ret, err := i.call(ctx, EntryExtend, tbl)
	if err != nil {
		return 0, err
	}
	return i.status(EntryExtend, ret)
}

// Migrate calls migrate(from_version).
func (i *Instance) Migrate(ctx context.Context, fromVersion string) (int, error) {
	ret, err := i.call(ctx, EntryMigrate, lua.LString(fromVersion))
	if err != nil {
		return 0, err
	}
	return i.status(EntryMigrate, ret)
}

// Info calls info(). A nil return yields a nil *Info.
func (i *Instance) Info(ctx context.Context) (*Info, error) {
	ret, err := i.call(ctx, EntryInfo)
	if err != nil {
		return nil, err
	}
	return decodeInfo(i.spec.Name, ret)
}

func (i *Instance) call(ctx context.Context, name string, args ...lua.LValue) (lua.LValue, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.L == nil {
		return nil, apixerr.Errorf(apixerr.CodeExtensionRuntimeFailure, "extension %s is closed", i.spec.Name)
	}
	fn, ok := i.entries[name]
	if !ok {
		return nil, apixerr.New(apixerr.CodeExtensionEntryPointNotFound,
			fmt.Sprintf("function %q not found in extension %s", name, i.spec.Name),
			apixerr.FieldExtension(i.spec.Name))
	}

	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	i.L.SetContext(ctx)
	defer i.L.RemoveContext()

	start := time.Now()
	if err := i.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return nil, i.scriptError(ctx, name, err)
	}
	ret := i.L.Get(-1)
	i.L.Pop(1)
	i.logger.Debug("entry point returned", "entry", name, "duration", time.Since(start))
	return ret, nil
}

func (i *Instance) status(name string, ret lua.LValue) (int, error) {
	switch v := ret.(type) {
	case *lua.LNilType:
		return 0, nil
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 {
			return int(f), nil
		}
	}
	return 0, apixerr.New(apixerr.CodeExtensionRuntimeFailure,
		fmt.Sprintf("%s returned %s %s, want an integer status", name, ret.Type(), ret.String()),
		apixerr.FieldExtension(i.spec.Name))
}

func (i *Instance) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for n := 1; n <= L.GetTop(); n++ {
		parts = append(parts, L.ToStringMeta(L.Get(n)).String())
	}
	i.surface.Log(capability.LevelInfo, strings.Join(parts, "\t"))
	return 0
}

// Close releases the Lua state and any file handles the script left open.
// It is safe to call more than once.
func (i *Instance) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.files.closeAll()
	if i.L != nil {
		i.L.Close()
		i.L = nil
	}
}
