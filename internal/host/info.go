// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package host

import (
	"fmt"
	"strings"

	apixerr "github.com/apix-dev/apix/pkg/errors"
	lua "github.com/yuin/gopher-lua"
)

// Info is the help an extension describes about itself.
type Info struct {
	Usage   []string
	Options []InfoOption
}

// InfoOption is one documented flag.
type InfoOption struct {
	Flag string
	Desc string
}

// Format renders the help block shown by "apix info".
func (in *Info) Format(name, version, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s: v%s]\n", name, version)
	fmt.Fprintf(&b, "%s\n\n", description)

	b.WriteString("Usage:\n")
	for _, u := range in.Usage {
		fmt.Fprintf(&b, "  %s\n", u)
	}
	b.WriteString("\n")

	if len(in.Options) > 0 {
		b.WriteString("Options:\n")
		for _, o := range in.Options {
			fmt.Fprintf(&b, "  %-12s %s\n", o.Flag, o.Desc)
		}
	}
	return b.String()
}

func decodeInfo(name string, v lua.LValue) (*Info, error) {
	invalid := func(format string, args ...any) error {
		return apixerr.New(apixerr.CodeExtensionRuntimeFailure,
			"info: "+fmt.Sprintf(format, args...), apixerr.FieldExtension(name))
	}

	if v == lua.LNil {
		return nil, nil
	}
	tbl, ok := v.(*lua.LTable)
	if !ok {
		return nil, invalid("expected a table or nil, got %s", v.Type())
	}

	info := &Info{}
	switch usage := tbl.RawGetString("usage").(type) {
	case *lua.LTable:
		for n := 1; n <= usage.Len(); n++ {
			s, ok := usage.RawGetInt(n).(lua.LString)
			if !ok {
				return nil, invalid("usage[%d] must be a string", n)
			}
			info.Usage = append(info.Usage, string(s))
		}
	case lua.LString:
		info.Usage = []string{string(usage)}
	default:
		if usage != lua.LNil {
			return nil, invalid("usage must be a list of strings")
		}
	}

	switch opts := tbl.RawGetString("options").(type) {
	case *lua.LTable:
		for n := 1; n <= opts.Len(); n++ {
			pair, ok := opts.RawGetInt(n).(*lua.LTable)
			if !ok {
				return nil, invalid("options[%d] must be a {flag, description} pair", n)
			}
			flag, ok1 := pair.RawGetInt(1).(lua.LString)
			desc, ok2 := pair.RawGetInt(2).(lua.LString)
			if !ok1 || !ok2 {
				return nil, invalid("options[%d] must be a {flag, description} pair", n)
			}
			info.Options = append(info.Options, InfoOption{Flag: string(flag), Desc: string(desc)})
		}
	default:
		if opts != lua.LNil {
			return nil, invalid("options must be a list of pairs")
		}
	}
	return info, nil
}
