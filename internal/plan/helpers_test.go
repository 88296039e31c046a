// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package plan_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apix-dev/apix/internal/plan"
	"github.com/apix-dev/apix/internal/sandbox"
	"github.com/apix-dev/apix/internal/vcs"
	"github.com/stretchr/testify/require"
)

type cleanTree struct {
	status vcs.Status
	err    error
}

func (c cleanTree) Clean(context.Context, string) (vcs.Status, error) {
	return c.status, c.err
}

var alwaysClean = cleanTree{status: vcs.Status{Clean: true}}

// recordingRunner records commands and fails when the command name is in fail.
type recordingRunner struct {
	mu   sync.Mutex
	ran  []plan.RunCommand
	dirs []string
	fail map[string]bool
	// onRun observes the tree at the moment the command runs.
	onRun func()
}

func (r *recordingRunner) Run(_ context.Context, dir string, cmd plan.RunCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onRun != nil {
		r.onRun()
	}
	r.ran = append(r.ran, cmd)
	r.dirs = append(r.dirs, dir)
	if r.fail[cmd.Command] {
		return errors.New("exit status 1")
	}
	return nil
}

type project struct {
	root string
	view *sandbox.View
}

func newProject(t *testing.T, files map[string]string) project {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	view, err := sandbox.New(root, nil, sandbox.WithReserved(".apix"))
	require.NoError(t, err)
	return project{root: root, view: view}
}

func (p project) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, name))
	require.NoError(t, err)
	return string(data)
}

// snapshot captures every entry below root with its mode and content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			out[rel] = "dir " + info.Mode().String()
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = info.Mode().String() + " " + string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func validated(t *testing.T, p *plan.Plan, proposals ...plan.Proposal) {
	t.Helper()
	require.NoError(t, p.Add(proposals...))
	require.NoError(t, p.Validate())
}
