// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package plan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apix-dev/apix/internal/plan"
	"github.com/apix-dev/apix/internal/vcs"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_AllKinds(t *testing.T) {
	proj := newProject(t, map[string]string{
		"Cargo.toml": "[package]\nname = \"demo\"\n",
		"old.txt":    "bye",
	})
	require.NoError(t, os.Chmod(filepath.Join(proj.root, "Cargo.toml"), 0o600))

	runner := &recordingRunner{}
	runner.onRun = func() {
		// Commands observe the file changes proposed before them.
		_, err := os.Stat(filepath.Join(proj.root, "src", "bin", "tool.rs"))
		assert.NoError(t, err)
	}

	p := plan.New(proj.view, plan.WithTreeChecker(alwaysClean), plan.WithCommandRunner(runner))
	validated(t, p,
		plan.CreateFile{Path: "src/bin/tool.rs", Content: "fn main() {}\n"},
		plan.ModifyFile{Path: "Cargo.toml", Content: "[workspace]\n"},
		plan.DeleteFile{Path: "old.txt"},
		plan.RunCommand{Command: "cargo", Args: []string{"fmt"}},
	)

	require.NoError(t, p.Apply(context.Background(), plan.ApplyOptions{}))
	assert.Equal(t, plan.StateApplied, p.State())

	assert.Equal(t, "fn main() {}\n", proj.read(t, "src/bin/tool.rs"))
	assert.Equal(t, "[workspace]\n", proj.read(t, "Cargo.toml"))
	assert.NoFileExists(t, filepath.Join(proj.root, "old.txt"))

	info, err := os.Stat(filepath.Join(proj.root, "Cargo.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "modify keeps the file mode")

	require.Len(t, runner.ran, 1)
	assert.Equal(t, "cargo", runner.ran[0].Command)
	assert.Equal(t, proj.root, runner.dirs[0])

	// No staging or backup files are left behind.
	for name := range snapshot(t, proj.root) {
		assert.NotContains(t, name, ".apix-")
	}

	// Applied is terminal.
	err = p.Apply(context.Background(), plan.ApplyOptions{})
	assert.True(t, apixerr.HasCode(err, apixerr.CodePlanStateTransitionInvalid))
	p.Discard()
	assert.Equal(t, plan.StateApplied, p.State())
}

func TestApply_EmptyPlanIsNoop(t *testing.T) {
	proj := newProject(t, nil)
	before := snapshot(t, proj.root)

	// The tree check is skipped because there is nothing to revert.
	p := plan.New(proj.view, plan.WithTreeChecker(cleanTree{status: vcs.Status{Reason: "dirty"}}))
	require.NoError(t, p.Validate())
	require.NoError(t, p.Apply(context.Background(), plan.ApplyOptions{}))

	assert.Equal(t, plan.StateApplied, p.State())
	assert.Equal(t, before, snapshot(t, proj.root))
}

func TestApply_RequiresValidation(t *testing.T) {
	proj := newProject(t, nil)
	p := plan.New(proj.view, plan.WithTreeChecker(alwaysClean))
	require.NoError(t, p.Add(plan.CreateFile{Path: "a", Content: "a"}))

	err := p.Apply(context.Background(), plan.ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodePlanStateTransitionInvalid))
	assert.NoFileExists(t, filepath.Join(proj.root, "a"))
}

func TestApply_DirtyTree(t *testing.T) {
	tests := []struct {
		name    string
		checker cleanTree
		want    string
	}{
		{"uncommitted", cleanTree{status: vcs.Status{Reason: "2 uncommitted change(s)"}}, "2 uncommitted"},
		{"not a repository", cleanTree{status: vcs.Status{Reason: "not a git repository"}}, "not a git repository"},
		{"checker failure", cleanTree{err: errors.New("git exploded")}, "git exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := newProject(t, nil)
			p := plan.New(proj.view, plan.WithTreeChecker(tt.checker))
			validated(t, p, plan.CreateFile{Path: "a.txt", Content: "a"})

			err := p.Apply(context.Background(), plan.ApplyOptions{})
			require.Error(t, err)
			assert.True(t, apixerr.HasCode(err, apixerr.CodePlanApplyDirtyTree))
			assert.Contains(t, err.Error(), tt.want)
			assert.NoFileExists(t, filepath.Join(proj.root, "a.txt"))
			// A refused apply can be retried once the tree is clean.
			assert.Equal(t, plan.StateValidated, p.State())

			require.NoError(t, p.Apply(context.Background(), plan.ApplyOptions{AllowDirty: true}))
			assert.Equal(t, "a", proj.read(t, "a.txt"))
		})
	}
}

func TestApply_FailureRestoresTree(t *testing.T) {
	proj := newProject(t, map[string]string{
		"Cargo.toml":  "[package]\n",
		"src/main.rs": "fn main() {}\n",
		"LICENSE":     "MIT\n",
	})
	before := snapshot(t, proj.root)

	runner := &recordingRunner{fail: map[string]bool{"cargo": true}}
	p := plan.New(proj.view, plan.WithTreeChecker(alwaysClean), plan.WithCommandRunner(runner))
	validated(t, p,
		plan.CreateFile{Path: "crates/core/src/lib.rs", Content: "pub fn x() {}\n"},
		plan.ModifyFile{Path: "Cargo.toml", Content: "[workspace]\nmembers = [\"crates/*\"]\n"},
		plan.DeleteFile{Path: "LICENSE"},
		plan.RunCommand{Command: "git", Args: []string{"add", "-A"}},
		plan.RunCommand{Command: "cargo", Args: []string{"check"}},
		plan.CreateFile{Path: "never.txt", Content: "unreached"},
	)

	err := p.Apply(context.Background(), plan.ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodePlanApplyFailure))
	assert.Equal(t, 4, apixerr.FieldsOf(err)["proposal"])
	assert.Equal(t, "cargo", apixerr.FieldsOf(err)["command"])
	assert.Contains(t, err.Error(), "cargo check")

	assert.Equal(t, before, snapshot(t, proj.root), "failed apply must leave the tree untouched")
	assert.Equal(t, plan.StateDiscarded, p.State())
	assert.Len(t, runner.ran, 2)
}

func TestApply_CommitFailureRestoresTree(t *testing.T) {
	proj := newProject(t, map[string]string{"go.mod": "module demo\n"})

	p := plan.New(proj.view, plan.WithTreeChecker(alwaysClean), plan.WithCommandRunner(&recordingRunner{}))
	validated(t, p,
		plan.ModifyFile{Path: "go.mod", Content: "module demo\n\ngo 1.25\n"},
		plan.CreateFile{Path: "pkg/racy.go", Content: "package pkg\n"},
	)

	// Someone creates the target between validation and apply.
	require.NoError(t, os.MkdirAll(filepath.Join(proj.root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proj.root, "pkg", "racy.go"), []byte("theirs"), 0o644))
	before := snapshot(t, proj.root)

	err := p.Apply(context.Background(), plan.ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodePlanApplyFailure))
	assert.Equal(t, 1, apixerr.FieldsOf(err)["proposal"])
	assert.Equal(t, before, snapshot(t, proj.root))
}

func TestApply_Cancelled(t *testing.T) {
	proj := newProject(t, nil)
	before := snapshot(t, proj.root)

	p := plan.New(proj.view, plan.WithTreeChecker(alwaysClean))
	validated(t, p, plan.CreateFile{Path: "deep/dir/a.txt", Content: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Apply(ctx, plan.ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodePlanApplyFailure))
	assert.Equal(t, before, snapshot(t, proj.root), "staged directories are removed")
}

func TestExecRunner(t *testing.T) {
	dir := t.TempDir()
	var out strings.Builder
	r := plan.ExecRunner{Stdout: &out, Stderr: &out}

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	require.NoError(t, r.Run(context.Background(), dir, plan.RunCommand{Command: "/bin/sh", Args: []string{"-c", "pwd"}}))
	assert.Contains(t, out.String(), filepath.Base(dir))

	assert.Error(t, r.Run(context.Background(), dir, plan.RunCommand{Command: "/bin/sh", Args: []string{"-c", "exit 3"}}))
}
