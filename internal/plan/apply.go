// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// CommandRunner executes a RunCommand proposal.
type CommandRunner interface {
	Run(ctx context.Context, dir string, cmd RunCommand) error
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, dir string, cmd RunCommand) error {
	c := exec.CommandContext(ctx, cmd.Command, cmd.Args...)
	c.Dir = dir
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	return c.Run()
}

// ApplyOptions controls Apply.
type ApplyOptions struct {
	// AllowDirty skips the clean working tree precondition.
	AllowDirty bool
}

const (
	stagePattern  = ".apix-stage-*"
	backupPattern = ".apix-backup-*"
)

// committed records one file change that reached the real tree so it can
// be reverted.
type committed struct {
	kind   Kind
	path   string
	backup string
}

// applier carries the bookkeeping of a single Apply call.
type applier struct {
	staged      map[int]string
	createdDirs []string
	done        []committed
}

// Apply performs a validated plan. File content is first written to staging
// files next to each target, then everything is committed in proposal order
// by renaming. If any step fails, every committed file change is reverted,
// staging files and created directories are removed, and the plan is
// discarded. Commands that already ran cannot be reverted.
func (p *Plan) Apply(ctx context.Context, opts ApplyOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateValidated {
		return apixerr.Errorf(apixerr.CodePlanStateTransitionInvalid,
			"invalid plan state transition: %s -> %s", p.state, StateApplied)
	}

	if len(p.steps) == 0 {
		return p.transitionTo(StateApplied)
	}

	if !opts.AllowDirty {
		if err := p.requireClean(ctx); err != nil {
			return err
		}
	}

	a := &applier{staged: map[int]string{}}

	if err := p.stage(a); err != nil {
		a.rollback(p)
		p.discardLocked()
		return err
	}

	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			a.rollback(p)
			p.discardLocked()
			return apixerr.Wrap(err, apixerr.CodePlanApplyFailure, "apply cancelled", apixerr.FieldProposal(s.index))
		}
		if err := p.commit(ctx, a, s); err != nil {
			rbErr := a.rollback(p)
			p.discardLocked()
			return apixerr.Wrap(errors.Join(err, rbErr), apixerr.CodePlanApplyFailure,
				fmt.Sprintf("applying proposal %d (%s %s)", s.index, s.proposal.Kind(), p.display(s)),
				apixerr.FieldProposal(s.index),
				targetField(s))
		}
	}

	for _, c := range a.done {
		if c.backup != "" {
			if err := os.Remove(c.backup); err != nil {
				p.logger.Warn("removing backup", "path", c.backup, "error", err)
			}
		}
	}

	return p.transitionTo(StateApplied)
}

func (p *Plan) requireClean(ctx context.Context) error {
	status, err := p.checker.Clean(ctx, p.view.Base())
	if err != nil {
		return apixerr.New(apixerr.CodePlanApplyDirtyTree,
			"cannot verify working tree: "+err.Error(), apixerr.FieldPath(p.view.Base()))
	}
	if !status.Clean {
		return apixerr.New(apixerr.CodePlanApplyDirtyTree,
			"working tree is not clean ("+status.Reason+"); commit your changes or pass --allow-dirty",
			apixerr.FieldPath(p.view.Base()))
	}
	return nil
}

func (p *Plan) display(s step) string {
	if s.path == "" {
		return s.proposal.(RunCommand).String()
	}
	return p.view.Rel(s.path)
}

func targetField(s step) apixerr.Attr {
	if s.path == "" {
		return apixerr.FieldCommand(s.proposal.Target())
	}
	return apixerr.FieldPath(s.proposal.Target())
}

// stage writes the content of every create and modify into a sibling
// temporary file, creating missing parent directories on the way.
func (p *Plan) stage(a *applier) error {
	for _, s := range p.steps {
		var content string
		mode := os.FileMode(0o644)

		switch prop := s.proposal.(type) {
		case CreateFile:
			content = prop.Content
		case ModifyFile:
			content = prop.Content
			if info, err := os.Stat(s.path); err == nil {
				mode = info.Mode().Perm()
			}
		default:
			continue
		}

		fail := func(err error, what string) error {
			return apixerr.Wrap(err, apixerr.CodePlanApplyFailure,
				fmt.Sprintf("staging proposal %d (%s %s): %s", s.index, s.proposal.Kind(), p.view.Rel(s.path), what),
				apixerr.FieldProposal(s.index), apixerr.FieldPath(s.proposal.Target()))
		}

		dir := filepath.Dir(s.path)
		if err := a.mkdirAll(dir); err != nil {
			return fail(err, "creating directory")
		}

		f, err := os.CreateTemp(dir, stagePattern)
		if err != nil {
			return fail(err, "creating staging file")
		}
		a.staged[s.index] = f.Name()

		if _, err := io.WriteString(f, content); err != nil {
			_ = f.Close()
			return fail(err, "writing staging file")
		}
		if err := f.Chmod(mode); err != nil {
			_ = f.Close()
			return fail(err, "setting mode")
		}
		if err := f.Close(); err != nil {
			return fail(err, "closing staging file")
		}
	}
	return nil
}

// mkdirAll creates dir and missing parents, remembering what it created.
func (a *applier) mkdirAll(dir string) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return err
		}
		missing = append(missing, d)
		if d == filepath.Dir(d) {
			break
		}
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil {
			return err
		}
		a.createdDirs = append(a.createdDirs, missing[i])
	}
	return nil
}

func (p *Plan) commit(ctx context.Context, a *applier, s step) error {
	switch prop := s.proposal.(type) {
	case CreateFile:
		if _, err := os.Lstat(s.path); err == nil {
			return fmt.Errorf("%s appeared after validation", p.view.Rel(s.path))
		}
		if err := os.Rename(a.staged[s.index], s.path); err != nil {
			return err
		}
		delete(a.staged, s.index)
		a.done = append(a.done, committed{kind: KindCreateFile, path: s.path})

	case ModifyFile:
		backup, err := moveAside(s.path)
		if err != nil {
			return err
		}
		a.done = append(a.done, committed{kind: KindModifyFile, path: s.path, backup: backup})
		if err := os.Rename(a.staged[s.index], s.path); err != nil {
			return err
		}
		delete(a.staged, s.index)

	case DeleteFile:
		backup, err := moveAside(s.path)
		if err != nil {
			return err
		}
		a.done = append(a.done, committed{kind: KindDeleteFile, path: s.path, backup: backup})

	case RunCommand:
		p.logger.Info("running command", "command", prop.String(), "dir", p.view.Base())
		if err := p.runner.Run(ctx, p.view.Base(), prop); err != nil {
			return fmt.Errorf("command %s: %w", prop.String(), err)
		}
	}
	return nil
}

// moveAside renames path to a unique sibling backup and returns its name.
func moveAside(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), backupPattern)
	if err != nil {
		return "", err
	}
	backup := f.Name()
	_ = f.Close()
	if err := os.Rename(path, backup); err != nil {
		_ = os.Remove(backup)
		return "", err
	}
	return backup, nil
}

// rollback reverts committed changes newest first, then removes staging
// files and directories created by this apply.
func (a *applier) rollback(p *Plan) error {
	var errs []error

	for i := len(a.done) - 1; i >= 0; i-- {
		c := a.done[i]
		var err error
		switch c.kind {
		case KindCreateFile:
			err = os.Remove(c.path)
		case KindModifyFile:
			// The staged file may not have been moved in yet; the backup
			// is the original either way.
			err = os.Rename(c.backup, c.path)
		case KindDeleteFile:
			err = os.Rename(c.backup, c.path)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reverting %s: %w", c.path, err))
		}
	}

	for _, staged := range a.staged {
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("removing staging file %s: %w", staged, err))
		}
	}

	for i := len(a.createdDirs) - 1; i >= 0; i-- {
		if err := os.Remove(a.createdDirs[i]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("removing directory %s: %w", a.createdDirs[i], err))
		}
	}

	if len(errs) > 0 {
		p.logger.Error("rollback incomplete, restore from version control", "errors", strings.Join(errStrings(errs), "; "))
		return errors.Join(errs...)
	}
	return nil
}

func errStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
