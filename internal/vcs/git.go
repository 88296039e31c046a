// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package vcs checks the version-control state of a project tree.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// Status describes whether a tree can be recovered by reverting to the last
// commit.
type Status struct {
	Clean bool
	// Reason explains a non-clean status.
	Reason string
	// Changes lists the porcelain status lines of modified tracked files.
	Changes []string
}

// Git inspects a tree with the git binary.
type Git struct {
	// Binary defaults to "git" on PATH.
	Binary string
}

func (g Git) binary() string {
	if g.Binary != "" {
		return g.Binary
	}
	return "git"
}

// Clean reports whether dir is inside a git work tree with no staged or
// unstaged changes to tracked files. Untracked files are ignored. A directory
// that is not a work tree is never clean.
func (g Git) Clean(ctx context.Context, dir string) (Status, error) {
	cmd := exec.CommandContext(ctx, g.binary(), "-C", dir, "status", "--porcelain", "--untracked-files=no")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(stderr.String(), "not a git repository") {
			return Status{Reason: "not a git repository"}, nil
		}
		return Status{}, apixerr.Wrap(err, apixerr.CodeVCSStatusFailure,
			fmt.Sprintf("running git status: %s", strings.TrimSpace(stderr.String())),
			apixerr.FieldPath(dir))
	}

	var changes []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			changes = append(changes, line)
		}
	}
	if len(changes) > 0 {
		return Status{Reason: fmt.Sprintf("%d uncommitted change(s)", len(changes)), Changes: changes}, nil
	}
	return Status{Clean: true}, nil
}

// Available reports whether the git binary can be found.
func (g Git) Available() bool {
	_, err := exec.LookPath(g.binary())
	return err == nil
}
