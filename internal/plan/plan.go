// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package plan collects the proposals of one extension invocation and
// validates, renders and applies them as a single unit.
package plan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apix-dev/apix/internal/sandbox"
	"github.com/apix-dev/apix/internal/vcs"
	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// Plan owns the ordered proposals of one invocation.
type Plan struct {
	mu        sync.Mutex
	view      *sandbox.View
	state     State
	proposals []Proposal
	steps     []step

	checker TreeChecker
	runner  CommandRunner
	logger  *slog.Logger
}

// step is a validated proposal. path is canonical and empty for commands.
type step struct {
	index    int
	proposal Proposal
	path     string
}

// TreeChecker reports whether the working tree has uncommitted changes.
type TreeChecker interface {
	Clean(ctx context.Context, dir string) (vcs.Status, error)
}

// Option configures a Plan.
type Option func(*Plan)

// WithTreeChecker replaces the git working-tree check.
func WithTreeChecker(c TreeChecker) Option {
	return func(p *Plan) { p.checker = c }
}

// WithCommandRunner replaces how RunCommand proposals are executed.
func WithCommandRunner(r CommandRunner) Option {
	return func(p *Plan) { p.runner = r }
}

// WithLogger sets the logger used while applying.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plan) { p.logger = l }
}

// WithCommandOutput streams the output of executed commands to w.
func WithCommandOutput(w io.Writer) Option {
	return func(p *Plan) { p.runner = ExecRunner{Stdout: w, Stderr: w} }
}

// New creates an empty plan whose file proposals are confined to view.
func New(view *sandbox.View, opts ...Option) *Plan {
	p := &Plan{
		view:    view,
		state:   StateEmpty,
		checker: vcs.Git{},
		runner:  ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current plan state.
func (p *Plan) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Proposals returns a copy of the proposals in the order they were added.
func (p *Plan) Proposals() []Proposal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Proposal, len(p.proposals))
	copy(out, p.proposals)
	return out
}

// Len returns the number of proposals.
func (p *Plan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proposals)
}

// Steps returns the number of effects a validated plan will perform, after
// identical duplicates were collapsed. It is zero before validation.
func (p *Plan) Steps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

// Add appends proposals. It is only allowed before validation.
func (p *Plan) Add(proposals ...Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateEmpty && p.state != StatePopulated {
		return apixerr.Errorf(apixerr.CodePlanStateTransitionInvalid,
			"cannot add proposals to a %s plan", p.state)
	}
	if len(proposals) == 0 {
		return nil
	}
	for _, prop := range proposals {
		if prop == nil {
			return apixerr.New(apixerr.CodePlanValidateInvalid, "nil proposal")
		}
	}
	p.proposals = append(p.proposals, proposals...)
	p.state = StatePopulated
	return nil
}

func (p *Plan) transitionTo(to State) error {
	if !ValidTransition(p.state, to) {
		return apixerr.Errorf(apixerr.CodePlanStateTransitionInvalid,
			"invalid plan state transition: %s -> %s", p.state, to)
	}
	p.state = to
	return nil
}

// Validate checks every proposal and seals the plan. File targets must
// resolve inside the sandbox, must agree with what is on disk, and may
// only be targeted once unless the proposals are identical, in which case
// the duplicates collapse into one. Any failure discards the whole plan.
func (p *Plan) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// An empty plan is sealed as populated-with-nothing.
	if p.state == StateEmpty {
		if err := p.transitionTo(StatePopulated); err != nil {
			return err
		}
	}
	if p.state != StatePopulated {
		return apixerr.Errorf(apixerr.CodePlanStateTransitionInvalid,
			"invalid plan state transition: %s -> %s", p.state, StateValidated)
	}

	steps, err := p.check()
	if err != nil {
		p.discardLocked()
		return err
	}

	p.steps = steps
	return p.transitionTo(StateValidated)
}

func (p *Plan) check() ([]step, error) {
	steps := make([]step, 0, len(p.proposals))
	byPath := map[string]int{}

	for i, prop := range p.proposals {
		if !isFile(prop) {
			run := prop.(RunCommand)
			if strings.TrimSpace(run.Command) == "" {
				return nil, apixerr.New(apixerr.CodePlanValidateInvalid,
					fmt.Sprintf("proposal %d: command must not be empty", i),
					apixerr.FieldProposal(i))
			}
			steps = append(steps, step{index: i, proposal: prop})
			continue
		}

		path, err := p.resolve(i, prop)
		if err != nil {
			return nil, err
		}

		if first, seen := byPath[path]; seen {
			if sameEffect(p.proposals[first], prop) {
				p.logger.Debug("dropping duplicate proposal", "proposal", i, "duplicate_of", first, "path", path)
				continue
			}
			return nil, apixerr.New(apixerr.CodePlanValidateConflict,
				fmt.Sprintf("proposals %d and %d both target %s", first, i, p.view.Rel(path)),
				apixerr.FieldProposal(i),
				apixerr.FieldPath(prop.Target()),
				apixerr.Field("conflicts_with", first))
		}

		if err := checkOnDisk(i, prop, path); err != nil {
			return nil, err
		}

		byPath[path] = i
		steps = append(steps, step{index: i, proposal: prop, path: path})
	}

	if err := checkNesting(steps, p.view); err != nil {
		return nil, err
	}
	return steps, nil
}

// resolve maps a file proposal onto its canonical path inside the sandbox.
// Sandbox errors are re-coded because they describe an authoring mistake in
// the plan rather than a denied read.
func (p *Plan) resolve(i int, prop Proposal) (string, error) {
	target := prop.Target()
	path, err := p.view.Canonicalize(target)
	if err != nil {
		return "", apixerr.New(apixerr.CodePlanValidateInvalid,
			fmt.Sprintf("proposal %d: invalid path %q: %v", i, target, err),
			apixerr.FieldProposal(i), apixerr.FieldPath(target))
	}
	if !p.view.Contains(path) {
		return "", apixerr.New(apixerr.CodePlanValidateOutOfSandbox,
			fmt.Sprintf("proposal %d: %s %s escapes the sandbox", i, prop.Kind(), target),
			apixerr.FieldProposal(i), apixerr.FieldPath(target), apixerr.Field("canonical", path))
	}
	return path, nil
}

func checkOnDisk(i int, prop Proposal, path string) error {
	invalid := func(reason string) error {
		return apixerr.New(apixerr.CodePlanValidateInvalid,
			fmt.Sprintf("proposal %d: %s %s: %s", i, prop.Kind(), prop.Target(), reason),
			apixerr.FieldProposal(i), apixerr.FieldPath(prop.Target()))
	}

	info, err := os.Stat(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return invalid(err.Error())
	}

	switch prop.Kind() {
	case KindCreateFile:
		if exists {
			return invalid("already exists")
		}
		// The nearest existing ancestor must be a directory.
		for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
			dinfo, err := os.Stat(dir)
			if err == nil {
				if !dinfo.IsDir() {
					return invalid(filepath.Base(dir) + " is not a directory")
				}
				break
			}
			if !os.IsNotExist(err) {
				return invalid(err.Error())
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	case KindModifyFile, KindDeleteFile:
		if !exists {
			return invalid("does not exist")
		}
		if !info.Mode().IsRegular() {
			return invalid("not a regular file")
		}
	}
	return nil
}

// checkNesting rejects plans where one file target is an ancestor of
// another, which would need the same path to be a file and a directory.
func checkNesting(steps []step, view *sandbox.View) error {
	owner := map[string]int{}
	for _, s := range steps {
		if s.path != "" {
			owner[s.path] = s.index
		}
	}

	for _, s := range steps {
		if s.path == "" {
			continue
		}
		for dir := filepath.Dir(s.path); dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			parent, ok := owner[dir]
			if !ok {
				continue
			}
			return apixerr.New(apixerr.CodePlanValidateConflict,
				fmt.Sprintf("proposals %d and %d conflict: %s is both a file and a directory",
					parent, s.index, view.Rel(dir)),
				apixerr.FieldProposal(s.index),
				apixerr.FieldPath(s.proposal.Target()),
				apixerr.Field("conflicts_with", parent))
		}
	}
	return nil
}

// Discard drops every proposal without touching the filesystem. It cannot
// fail; on an applied plan it does nothing.
func (p *Plan) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateApplied {
		p.logger.Debug("ignoring discard of applied plan")
		return
	}
	p.discardLocked()
}

func (p *Plan) discardLocked() {
	p.proposals = nil
	p.steps = nil
	p.state = StateDiscarded
}
