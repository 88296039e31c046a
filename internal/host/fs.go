// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package host

import (
	"path/filepath"
	"sync"

	"github.com/apix-dev/apix/internal/sandbox"
	lua "github.com/yuin/gopher-lua"
)

const fileTypeName = "apix.file"

// fileTracker remembers handles opened by a script so they can be closed
// with the instance.
type fileTracker struct {
	mu    sync.Mutex
	files []*sandbox.File
}

func (t *fileTracker) add(f *sandbox.File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = append(t.files, f)
}

func (t *fileTracker) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.files {
		_ = f.Close()
	}
	t.files = nil
}

// registerFS builds the read-only fs table over view.
func registerFS(L *lua.LState, view *sandbox.View, dataDir string, files *fileTracker) *lua.LTable {
	mt := L.NewTypeMetatable(fileTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"read_all":   fileReadAll,
		"read_bytes": fileReadBytes,
		"path":       filePath,
		"close":      fileClose,
	}))

	fs := L.NewTable()
	L.SetFuncs(fs, map[string]lua.LGFunction{
		"open": func(L *lua.LState) int {
			f, err := view.Open(L.CheckString(1))
			raise(L, err)
			files.add(f)
			ud := L.NewUserData()
			ud.Value = f
			L.SetMetatable(ud, L.GetTypeMetatable(fileTypeName))
			L.Push(ud)
			return 1
		},
		"read": func(L *lua.LState) int {
			data, err := view.ReadFile(L.CheckString(1))
			raise(L, err)
			L.Push(lua.LString(data))
			return 1
		},
		"list": func(L *lua.LState) int {
			entries, err := view.List(L.OptString(1, "."))
			raise(L, err)
			out := L.CreateTable(len(entries), 0)
			for _, e := range entries {
				row := L.CreateTable(0, 3)
				row.RawSetString("name", lua.LString(e.Name))
				row.RawSetString("is_dir", lua.LBool(e.IsDir))
				row.RawSetString("size", lua.LNumber(e.Size))
				out.Append(row)
			}
			L.Push(out)
			return 1
		},
		"exists": func(L *lua.LState) int {
			ok, err := view.Exists(L.CheckString(1))
			raise(L, err)
			L.Push(lua.LBool(ok))
			return 1
		},
		"join": func(L *lua.LState) int {
			parts := make([]string, 0, L.GetTop())
			for n := 1; n <= L.GetTop(); n++ {
				parts = append(parts, L.CheckString(n))
			}
			L.Push(lua.LString(filepath.Join(parts...)))
			return 1
		},
	})
	fs.RawSetString("project_root", lua.LString(view.Base()))
	fs.RawSetString("data_dir", lua.LString(dataDir))
	return fs
}

func checkFile(L *lua.LState) *sandbox.File {
	ud := L.CheckUserData(1)
	f, ok := ud.Value.(*sandbox.File)
	if !ok {
		L.ArgError(1, "file handle expected")
	}
	return f
}

func fileReadAll(L *lua.LState) int {
	data, err := checkFile(L).ReadAll()
	raise(L, err)
	L.Push(lua.LString(data))
	return 1
}

func fileReadBytes(L *lua.LState) int {
	f := checkFile(L)
	data, err := f.ReadAt(L.CheckInt64(2), L.CheckInt(3))
	raise(L, err)
	L.Push(lua.LString(data))
	return 1
}

func filePath(L *lua.LState) int {
	L.Push(lua.LString(checkFile(L).Path()))
	return 1
}

func fileClose(L *lua.LState) int {
	_ = checkFile(L).Close()
	return 0
}

func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}
