// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package host_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apix-dev/apix/internal/host"
	"github.com/apix-dev/apix/internal/plan"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fsProbe = `
function create(path)
  local f = fs.open(path)
  local all = f:read_all()
  local head = fs.open(path):read_bytes(0, 4)
  ctx.create_file("out.txt", head .. "|" .. all .. "|" .. tostring(f:path() ~= nil))
  f:close()
  return 0
end

function extend(args)
  local names = {}
  for _, e in ipairs(fs.list(".")) do
    table.insert(names, e.name .. (e.is_dir and "/" or ""))
  end
  ctx.create_file("listing.txt", table.concat(names, ","))
  return fs.exists(args[1]) and 1 or 0
end

function migrate(from)
  ctx.create_file("where.txt", fs.join(fs.data_dir, "cache") .. "\n" .. fs.project_root)
  ctx.create_file("cache.txt", fs.read(fs.join(fs.data_dir, "cache")))
  return 0
end
`

func fsInstance(t *testing.T) (env, *host.Instance) {
	t.Helper()
	e := newEnv(t)
	e.install(t, "probe", "1.0.0", fsProbe)
	require.NoError(t, os.WriteFile(filepath.Join(e.project, "README.md"), []byte("hello world"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(e.project, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(e.project, ".apix"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(e.extensions, "probe", "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.extensions, "probe", "data", "cache"), []byte("cached"), 0o644))

	inst, err := e.load(t, "probe", "1.0.0", host.WithReserved(".apix"))
	require.NoError(t, err)
	return e, inst
}

func contentOf(t *testing.T, inst *host.Instance, path string) string {
	t.Helper()
	for _, p := range inst.Plan().Proposals() {
		if p.Target() == path {
			c, ok := p.(plan.CreateFile)
			require.True(t, ok, "%s is not a create proposal", path)
			return c.Content
		}
	}
	t.Fatalf("no proposal for %s", path)
	return ""
}

func TestFS_OpenAndRead(t *testing.T) {
	_, inst := fsInstance(t)

	_, err := inst.Create(context.Background(), "README.md")
	require.NoError(t, err)
	assert.Equal(t, "hell|hello world|true", contentOf(t, inst, "out.txt"))
}

func TestFS_OpenOutsideDenied(t *testing.T) {
	e, inst := fsInstance(t)
	secret := filepath.Join(filepath.Dir(e.project), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("key"), 0o600))

	_, err := inst.Create(context.Background(), secret)
	require.Error(t, err)
	assert.Equal(t, apixerr.CodeExtensionRuntimeFailure, apixerr.CodeOf(err))
	assert.Contains(t, err.Error(), "outside")
	assert.Empty(t, inst.Plan().Proposals())
}

func TestFS_OpenReservedDenied(t *testing.T) {
	e, inst := fsInstance(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.project, ".apix", "state.db"), []byte("db"), 0o644))

	_, err := inst.Create(context.Background(), ".apix/state.db")
	require.Error(t, err)
}

func TestFS_ListAndExists(t *testing.T) {
	_, inst := fsInstance(t)

	status, err := inst.Extend(context.Background(), []string{"README.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	assert.Equal(t, "README.md,src/", contentOf(t, inst, "listing.txt"))
}

func TestFS_DataDirIsReadable(t *testing.T) {
	e, inst := fsInstance(t)

	_, err := inst.Migrate(context.Background(), "0.1.0")
	require.NoError(t, err)

	cache := filepath.Join(e.extensions, "probe", "data", "cache")
	assert.Equal(t, cache+"\n"+e.project, contentOf(t, inst, "where.txt"))
	assert.Equal(t, "cached", contentOf(t, inst, "cache.txt"))
}
