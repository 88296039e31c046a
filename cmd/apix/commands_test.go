// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSource = `
function create(name)
  ctx.info("creating " .. name)
  ctx.create_file(name .. "/README.md", "# " .. name .. "\n")
  return 0
end

function extend(args)
  local out = ""
  for i = 1, #args do
    out = out .. args[i] .. "\n"
  end
  ctx.create_file("ARGS", out)
  return 0
end

function migrate(from)
  ctx.create_file("MIGRATED_FROM", from)
  return 0
end

function info()
  return {usage = {"apix create widget <name>"}, options = {{"--lib", "library layout"}}}
end
`

type cliEnv struct {
	extensions string
	project    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	isolateHome(t)
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	e := &cliEnv{
		extensions: filepath.Join(root, "extensions"),
		project:    filepath.Join(root, "acme"),
	}
	require.NoError(t, os.MkdirAll(e.project, 0o755))
	manifest := "[repo]\nname = \"acme\"\n\n[extensions]\nwidget = \"1.0.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.project, "monorepo.toml"), []byte(manifest), 0o644))
	e.install(t, "1.0.0")
	return e
}

func (e *cliEnv) install(t *testing.T, version string) {
	t.Helper()
	dir := filepath.Join(e.extensions, "widget", version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := "name = \"widget\"\nversion = \"" + version + "\"\ndescription = \"widget projects\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.toml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.lua"), []byte(widgetSource), 0o644))
}

func (e *cliEnv) run(t *testing.T, sub string, args ...string) (string, error) {
	t.Helper()
	full := append([]string{sub, "--project", e.project, "--extensions-dir", e.extensions}, args...)
	return execute(t, full...)
}

func (e *cliEnv) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.project, rel))
	require.NoError(t, err)
	return string(data)
}

func TestCreateCommand_AppliesAndRecords(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "create", "--allow-dirty", "-y", "widget", "gizmo")
	require.NoError(t, err)
	assert.Contains(t, out, "creating gizmo")
	assert.Contains(t, out, "widget 1.0.0: applied 1 change(s)")
	assert.Equal(t, "# gizmo\n", e.read(t, "gizmo/README.md"))
	assert.FileExists(t, filepath.Join(e.project, ".apix", "state.db"))

	out, err = e.run(t, "create", "--allow-dirty", "-y", "widget", "gizmo")
	require.NoError(t, err)
	assert.Contains(t, out, "already ran create")
}

func TestCreateCommand_DryRunLeavesNoState(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "create", "--dry-run", "widget", "gizmo")
	require.NoError(t, err)
	assert.Contains(t, out, "gizmo/README.md")
	assert.Contains(t, out, "dry run, 1 change(s) not applied")
	assert.NoFileExists(t, filepath.Join(e.project, "gizmo", "README.md"))
	assert.NoDirExists(t, filepath.Join(e.project, ".apix"))
}

func TestCreateCommand_DeclinedWithoutInput(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "create", "--allow-dirty", "widget", "gizmo")
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodePlanAcceptDenied))
	assert.NoFileExists(t, filepath.Join(e.project, "gizmo", "README.md"))
}

func TestCreateCommand_NotInstalled(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "create", "--allow-dirty", "-y", "nothing", "gizmo")
	require.Error(t, err)
	assert.True(t, apixerr.IsNotFound(err))
}

func TestExtendCommand_PassesFlagsThrough(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "extend", "--allow-dirty", "-y", "widget", "part", "--lib")
	require.NoError(t, err)
	assert.Equal(t, "part\n--lib\n", e.read(t, "ARGS"))
}

func TestMigrateCommand_UpdatesManifest(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.run(t, "create", "--allow-dirty", "-y", "widget", "gizmo")
	require.NoError(t, err)

	e.install(t, "1.1.0")
	out, err := e.run(t, "migrate", "--allow-dirty", "-y", "widget")
	require.NoError(t, err)
	assert.Contains(t, out, "widget 1.1.0: applied 2 change(s)")
	assert.Equal(t, "1.0.0", e.read(t, "MIGRATED_FROM"))
	assert.Contains(t, e.read(t, "monorepo.toml"), "1.1.0")

	out, err = e.run(t, "migrate", "--allow-dirty", "-y", "widget")
	require.NoError(t, err)
	assert.Contains(t, out, "already ran migrate")
}

func TestInfoCommand(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.run(t, "info", "widget")
	require.NoError(t, err)
	assert.Contains(t, out, "[widget: v1.0.0]")
	assert.Contains(t, out, "apix create widget <name>")
	assert.Contains(t, out, "--lib")
	assert.NoDirExists(t, filepath.Join(e.project, ".apix"))
}

func TestCommand_ProjectMustExist(t *testing.T) {
	e := newCLIEnv(t)

	_, err := execute(t, "info", "--project", filepath.Join(e.project, "missing"), "--extensions-dir", e.extensions, "widget")
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodeCLIInputInvalid))
}

func TestCommand_WarnsOnWritableExtensionsDir(t *testing.T) {
	e := newCLIEnv(t)
	// Chmod bypasses the umask applied by MkdirAll.
	require.NoError(t, os.Chmod(e.extensions, 0o755))

	_, logs, err := executeCapture(t, "info", "--project", e.project, "--extensions-dir", e.extensions, "widget")
	require.NoError(t, err)
	assert.NotContains(t, logs, "insecure permissions")

	require.NoError(t, os.Chmod(e.extensions, 0o777))
	_, logs, err = executeCapture(t, "info", "--project", e.project, "--extensions-dir", e.extensions, "widget")
	require.NoError(t, err)
	assert.Contains(t, logs, "extensions dir has insecure permissions")
	assert.Contains(t, logs, e.extensions)
}
