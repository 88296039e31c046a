// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package capability

import (
	lua "github.com/yuin/gopher-lua"
)

// Register builds the ctx table bound to s. Every function works both as
// ctx.fn(...) and ctx:fn(...).
func (s *Surface) Register(L *lua.LState) *lua.LTable {
	ctx := L.NewTable()

	funcs := map[string]lua.LGFunction{
		"log":             s.luaLog,
		"ask":             s.luaAsk,
		"create_file":     s.luaCreateFile,
		"modify_file":     s.luaModifyFile,
		"delete_file":     s.luaDeleteFile,
		"run_command":     s.luaRunCommand,
		"command_exists":  s.luaCommandExists,
		"command_version": s.luaCommandVersion,
	}
	for _, lvl := range []Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError} {
		funcs[levelName(lvl)] = s.luaLogAt(lvl)
	}
	// Older extensions use the system_* names.
	funcs["system"] = funcs["run_command"]
	funcs["system_exists"] = funcs["command_exists"]
	funcs["system_version"] = funcs["command_version"]

	for name, fn := range funcs {
		L.SetField(ctx, name, L.NewFunction(method(ctx, fn)))
	}
	return ctx
}

func levelName(l Level) string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// method drops a leading self argument so colon calls behave like dot calls.
func method(self *lua.LTable, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if L.GetTop() > 0 && L.Get(1) == self {
			L.Remove(1)
		}
		return fn(L)
	}
}

func (s *Surface) luaLog(L *lua.LState) int {
	level := ParseLevel(L.CheckString(1))
	s.Log(level, checkMessage(L, 2))
	return 0
}

func (s *Surface) luaLogAt(level Level) lua.LGFunction {
	return func(L *lua.LState) int {
		s.Log(level, checkMessage(L, 1))
		return 0
	}
}

func checkMessage(L *lua.LState, n int) string {
	v := L.Get(n)
	str, ok := v.(lua.LString)
	if !ok {
		L.ArgError(n, "log message must be a string, got "+v.Type().String())
	}
	return string(str)
}

func (s *Surface) luaAsk(L *lua.LState) int {
	answer, err := s.Ask(L.CheckString(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	L.Push(lua.LString(answer))
	return 1
}

func (s *Surface) luaCreateFile(L *lua.LState) int {
	raise(L, s.CreateFile(L.CheckString(1), L.CheckString(2)))
	return 0
}

func (s *Surface) luaModifyFile(L *lua.LState) int {
	raise(L, s.ModifyFile(L.CheckString(1), L.CheckString(2)))
	return 0
}

func (s *Surface) luaDeleteFile(L *lua.LState) int {
	raise(L, s.DeleteFile(L.CheckString(1)))
	return 0
}

func (s *Surface) luaRunCommand(L *lua.LState) int {
	command := L.CheckString(1)

	var args []string
	if tbl := L.OptTable(2, nil); tbl != nil {
		n := tbl.Len()
		args = make([]string, 0, n)
		for i := 1; i <= n; i++ {
			v := tbl.RawGetInt(i)
			switch v.(type) {
			case lua.LString, lua.LNumber:
				args = append(args, lua.LVAsString(v))
			default:
				L.ArgError(2, "command arguments must be strings")
			}
		}
	}

	raise(L, s.RunCommand(command, args))
	return 0
}

func (s *Surface) luaCommandExists(L *lua.LState) int {
	L.Push(lua.LBool(s.CommandExists(L.CheckString(1))))
	return 1
}

func (s *Surface) luaCommandVersion(L *lua.LState) int {
	L.Push(lua.LString(s.CommandVersion(L.CheckString(1), L.OptString(2, DefaultVersionFlag))))
	return 1
}

func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
}
