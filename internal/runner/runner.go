// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package runner drives one extension invocation end to end: resolve the
// version, load the script, call the entry point, review the plan, apply it
// and record the action in the ledger.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apix-dev/apix/internal/capability"
	"github.com/apix-dev/apix/internal/extension"
	"github.com/apix-dev/apix/internal/host"
	"github.com/apix-dev/apix/internal/plan"
	"github.com/apix-dev/apix/internal/project"
	"github.com/apix-dev/apix/internal/store"
	"github.com/apix-dev/apix/internal/vcs"
	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// Review formats accepted by RunOptions.Format.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Config is the static configuration of a Runner.
type Config struct {
	ExtensionsDir string
	ProjectRoot   string
	// Manifest is the project manifest file name relative to ProjectRoot.
	Manifest string
	// StateDir is hidden from extensions.
	StateDir     string
	Policy       extension.Policy
	ExecTimeout  time.Duration
	ProbeTimeout time.Duration
	Render       plan.RenderOptions
}

// RunOptions are the per-invocation switches of the CLI.
type RunOptions struct {
	// AssumeYes accepts the plan without asking.
	AssumeYes bool
	// AllowDirty skips the clean working tree precondition.
	AllowDirty bool
	// DryRun renders the plan and discards it.
	DryRun bool
	Format string
}

// Result summarises one invocation.
type Result struct {
	Extension string
	Version   string
	Action    extension.Action
	Status    int
	Changes   int
	Applied   bool
	// Skipped is set when the ledger shows the action was already applied.
	Skipped bool
}

// Runner owns the collaborators shared by invocations. Each invocation gets
// its own host instance, surface and plan.
type Runner struct {
	cfg      Config
	ledger   store.Ledger
	checker  plan.TreeChecker
	commands plan.CommandRunner
	prober   capability.Prober
	in       *bufio.Reader
	out      io.Writer
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTreeChecker replaces the git working tree check.
func WithTreeChecker(c plan.TreeChecker) Option {
	return func(r *Runner) { r.checker = c }
}

// WithCommandRunner replaces how proposed commands are executed.
func WithCommandRunner(c plan.CommandRunner) Option {
	return func(r *Runner) { r.commands = c }
}

// WithProber replaces the command probes offered to scripts.
func WithProber(p capability.Prober) Option {
	return func(r *Runner) { r.prober = p }
}

// WithInput sets where prompts and confirmations are read from.
func WithInput(in io.Reader) Option {
	return func(r *Runner) { r.in = bufio.NewReader(in) }
}

// WithOutput sets where logs, reviews and prompts are written.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithLogger sets the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner recording applied actions in ledger.
func New(cfg Config, ledger store.Ledger, opts ...Option) *Runner {
	if cfg.Manifest == "" {
		cfg.Manifest = project.DefaultManifest
	}
	if cfg.Policy == "" {
		cfg.Policy = extension.PolicyStrict
	}
	r := &Runner{
		cfg:     cfg,
		ledger:  ledger,
		checker: vcs.Git{},
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.prober == nil {
		r.prober = capability.ExecProber{Timeout: cfg.ProbeTimeout}
	}
	if r.commands == nil {
		r.commands = plan.ExecRunner{Stdout: r.out, Stderr: r.out}
	}
	return r
}

// Session is an extension loaded for one invocation.
type Session struct {
	Name        string
	Version     string
	Requirement string
	// Exact is false when the nearest installed version was picked.
	Exact      bool
	Descriptor *extension.Descriptor
	Instance   *host.Instance
	Manifest   *project.Manifest
	Project    string
}

// Close releases the script state.
func (s *Session) Close() {
	if s.Instance != nil {
		s.Instance.Close()
	}
}

// Prepare resolves and loads extension name. An empty constraint means the
// project requirement, or "*" when the project records none.
func (r *Runner) Prepare(ctx context.Context, name, constraint string) (*Session, error) {
	m, err := r.loadManifest()
	if err != nil {
		return nil, err
	}

	requirement := extension.Any
	if v, ok := m.Requirement(name); ok {
		requirement = v
	}
	if constraint == "" {
		constraint = requirement
	}

	installed, err := extension.InstalledVersions(r.cfg.ExtensionsDir, name)
	if err != nil {
		return nil, err
	}
	res, err := extension.Resolve(name, constraint, installed)
	if err != nil {
		return nil, err
	}
	if !res.Exact {
		r.logger.Warn("requested extension version is not installed, using nearest",
			"extension", name, "requested", constraint, "resolved", res.Version)
	}

	layout := extension.Layout{Root: r.cfg.ExtensionsDir}
	desc, err := extension.LoadManifest(layout.VersionDir(name, res.Version))
	if err != nil {
		return nil, apixerr.With(err, apixerr.FieldExtension(name), apixerr.FieldVersion(res.Version))
	}
	if err := extension.VerifyManifest(desc, name, res.Version); err != nil {
		return nil, err
	}

	if constraint == requirement {
		if err := r.cfg.Policy.Enforce(name, res.Version, requirement); err != nil {
			return nil, err
		}
	}

	inst, err := host.Load(ctx, host.Spec{
		Name:          name,
		Version:       res.Version,
		ExtensionsDir: r.cfg.ExtensionsDir,
		ProjectRoot:   r.cfg.ProjectRoot,
	},
		host.WithExecTimeout(r.cfg.ExecTimeout),
		host.WithLogger(r.logger),
		host.WithReserved(r.cfg.StateDir),
		host.WithPlanOptions(
			plan.WithTreeChecker(r.checker),
			plan.WithCommandRunner(r.commands),
			plan.WithLogger(r.logger),
		),
		host.WithSurfaceOptions(
			capability.WithOutput(r.out),
			capability.WithInput(r.in),
			capability.WithProber(r.prober),
			capability.WithColor(r.cfg.Render.Color),
			capability.WithLogger(r.logger),
		),
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		Name:        name,
		Version:     res.Version,
		Requirement: requirement,
		Exact:       res.Exact,
		Descriptor:  desc,
		Instance:    inst,
		Manifest:    m,
		Project:     r.projectName(m),
	}, nil
}

// loadManifest reads the project manifest. A project without one is
// treated as requiring nothing.
func (r *Runner) loadManifest() (*project.Manifest, error) {
	m, err := project.Load(r.cfg.ProjectRoot, r.cfg.Manifest)
	if apixerr.HasCode(err, apixerr.CodeProjectManifestNotFound) {
		r.logger.Debug("no project manifest", "root", r.cfg.ProjectRoot)
		return &project.Manifest{}, nil
	}
	return m, err
}

func (r *Runner) projectName(m *project.Manifest) string {
	if name := m.Name(); name != "" {
		return name
	}
	return filepath.Base(r.cfg.ProjectRoot)
}

// Create runs create(projectName). It is skipped when the ledger already
// holds the same create.
func (r *Runner) Create(ctx context.Context, name, projectName string, opts RunOptions) (*Result, error) {
	s, err := r.Prepare(ctx, name, "")
	if err != nil {
		return nil, err
	}
	defer s.Close()

	key := store.EventKey{Extension: name, Project: s.Project, Action: string(extension.ActionCreate), Args: []string{projectName}}
	return r.invoke(ctx, s, extension.ActionCreate, key, true, opts, func(ctx context.Context) (int, error) {
		return s.Instance.Create(ctx, projectName)
	})
}

// Extend runs extend(args). Every applied extend is recorded; repeating one
// is allowed.
func (r *Runner) Extend(ctx context.Context, name string, args []string, opts RunOptions) (*Result, error) {
	s, err := r.Prepare(ctx, name, "")
	if err != nil {
		return nil, err
	}
	defer s.Close()

	key := store.EventKey{Extension: name, Project: s.Project, Action: string(extension.ActionExtend), Args: args}
	return r.invoke(ctx, s, extension.ActionExtend, key, false, opts, func(ctx context.Context) (int, error) {
		return s.Instance.Extend(ctx, args)
	})
}

// Migrate moves the project from the version it was last applied with to
// the newest installed version of name.
func (r *Runner) Migrate(ctx context.Context, name string, opts RunOptions) (*Result, error) {
	s, err := r.Prepare(ctx, name, extension.Any)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	from, err := r.ledger.InstalledVersion(ctx, name)
	if apixerr.IsNotFound(err) {
		from = s.Requirement
		err = nil
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Extension: name, Version: s.Version, Action: extension.ActionMigrate}
	// A project requiring "*" always tracks the newest version.
	if from == s.Version || from == extension.Any {
		r.logger.Info("extension already at newest installed version", "extension", name, "version", s.Version)
		result.Skipped = true
		return result, nil
	}

	key := store.EventKey{Extension: name, Project: s.Project, Action: string(extension.ActionMigrate), Args: []string{from, s.Version}}
	return r.invoke(ctx, s, extension.ActionMigrate, key, true, opts, func(ctx context.Context) (int, error) {
		status, err := s.Instance.Migrate(ctx, from)
		if err != nil || status != 0 {
			return status, err
		}
		return 0, r.proposeManifestUpdate(s)
	})
}

// proposeManifestUpdate adds the monorepo.toml rewrite recording the new
// version, when the project has a manifest.
func (r *Runner) proposeManifestUpdate(s *Session) error {
	if s.Manifest.Path() == "" {
		return nil
	}
	if v, ok := s.Manifest.Requirement(s.Name); ok && v == s.Version {
		return nil
	}
	content, err := s.Manifest.WithVersion(s.Name, s.Version).Encode()
	if err != nil {
		return err
	}
	return s.Instance.Plan().Add(plan.ModifyFile{Path: s.Manifest.Path(), Content: content})
}

// Info returns the rendered help block of name.
func (r *Runner) Info(ctx context.Context, name string) (string, error) {
	s, err := r.Prepare(ctx, name, "")
	if err != nil {
		return "", err
	}
	defer s.Close()

	if !s.Descriptor.Supports(extension.ActionInfo) {
		return "", unsupported(s, extension.ActionInfo)
	}
	info, err := s.Instance.Info(ctx)
	if err != nil {
		return "", err
	}
	if info == nil {
		return fmt.Sprintf("[%s: v%s]\n%s\n", s.Name, s.Version, s.Descriptor.Description), nil
	}
	return info.Format(s.Name, s.Version, s.Descriptor.Description), nil
}

func unsupported(s *Session, a extension.Action) error {
	return apixerr.New(apixerr.CodeExtensionActionUnsupported,
		fmt.Sprintf("extension %s %s does not support %s", s.Name, s.Version, a),
		apixerr.FieldExtension(s.Name), apixerr.FieldVersion(s.Version))
}

type entryCall func(ctx context.Context) (int, error)

func (r *Runner) invoke(ctx context.Context, s *Session, action extension.Action, key store.EventKey,
	once bool, opts RunOptions, call entryCall) (*Result, error) {
	result := &Result{Extension: s.Name, Version: s.Version, Action: action}
	p := s.Instance.Plan()

	if !s.Descriptor.Supports(action) {
		return nil, unsupported(s, action)
	}
	if err := s.Instance.RequireExports(string(action)); err != nil {
		return nil, err
	}

	if once {
		done, err := r.ledger.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if done {
			r.logger.Info("action already applied, skipping", "extension", s.Name, "action", action, "args", key.Args)
			result.Skipped = true
			return result, nil
		}
	}

	status, err := call(ctx)
	result.Status = status
	if err != nil {
		p.Discard()
		return nil, err
	}
	if status != 0 {
		p.Discard()
		return result, apixerr.New(apixerr.CodeExtensionRuntimeFailure,
			fmt.Sprintf("%s %s returned status %d", s.Name, action, status),
			apixerr.FieldExtension(s.Name), apixerr.FieldVersion(s.Version), apixerr.Field("status", status))
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	result.Changes = p.Steps()

	if err := r.review(p, opts.Format); err != nil {
		p.Discard()
		return nil, err
	}

	if opts.DryRun {
		p.Discard()
		return result, nil
	}

	if p.Len() > 0 && !opts.AssumeYes {
		ok, err := r.confirm()
		if err != nil {
			p.Discard()
			return nil, err
		}
		if !ok {
			p.Discard()
			return result, apixerr.New(apixerr.CodePlanAcceptDenied, "changes were not accepted",
				apixerr.FieldExtension(s.Name))
		}
	}

	if err := p.Apply(ctx, plan.ApplyOptions{AllowDirty: opts.AllowDirty}); err != nil {
		return nil, err
	}
	result.Applied = true

	if err := r.ledger.Record(ctx, store.Event{Key: key, Version: s.Version}); err != nil {
		return result, err
	}
	if action == extension.ActionCreate || action == extension.ActionMigrate {
		if err := r.ledger.RecordInstalledVersion(ctx, s.Name, s.Version); err != nil {
			return result, err
		}
	}
	r.logger.Debug("action recorded", "extension", s.Name, "action", action, "changes", result.Changes)
	return result, nil
}

func (r *Runner) review(p *plan.Plan, format string) error {
	var (
		out string
		err error
	)
	switch format {
	case "", FormatText:
		out, err = p.Render(r.cfg.Render)
	case FormatYAML:
		out, err = p.RenderYAML()
	default:
		return apixerr.Errorf(apixerr.CodeCLIInputInvalid, "unknown review format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(r.out, out)
	return err
}

func (r *Runner) confirm() (bool, error) {
	fmt.Fprint(r.out, "Apply these changes? [y/N] ")
	line, err := r.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return false, nil
		}
		return false, apixerr.Wrap(err, apixerr.CodeCLIInputInvalid, "reading confirmation")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
