// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package plan

import (
	"slices"
	"strconv"
	"strings"
)

// Kind identifies a proposal variant.
type Kind string

const (
	KindCreateFile Kind = "create"
	KindModifyFile Kind = "modify"
	KindDeleteFile Kind = "delete"
	KindRunCommand Kind = "run"
)

// Proposal is a deferred, data-only description of one effect. The set of
// implementations is closed: CreateFile, ModifyFile, DeleteFile, RunCommand.
type Proposal interface {
	Kind() Kind
	// Target is the path for file proposals and the command for RunCommand.
	Target() string
	proposal()
}

// CreateFile writes a new file. The path must not exist yet.
type CreateFile struct {
	Path    string
	Content string
}

// ModifyFile replaces the content of an existing file.
type ModifyFile struct {
	Path    string
	Content string
}

// DeleteFile removes an existing file.
type DeleteFile struct {
	Path string
}

// RunCommand executes a command in the project root at apply time.
type RunCommand struct {
	Command string
	Args    []string
}

func (CreateFile) Kind() Kind { return KindCreateFile }
func (ModifyFile) Kind() Kind { return KindModifyFile }
func (DeleteFile) Kind() Kind { return KindDeleteFile }
func (RunCommand) Kind() Kind { return KindRunCommand }

func (p CreateFile) Target() string { return p.Path }
func (p ModifyFile) Target() string { return p.Path }
func (p DeleteFile) Target() string { return p.Path }
func (p RunCommand) Target() string { return p.Command }

func (CreateFile) proposal() {}
func (ModifyFile) proposal() {}
func (DeleteFile) proposal() {}
func (RunCommand) proposal() {}

// String renders the command line with shell-style quoting where needed.
func (p RunCommand) String() string {
	parts := make([]string, 0, len(p.Args)+1)
	parts = append(parts, quoteArg(p.Command))
	for _, a := range p.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n'\"\\$`") {
		return strconv.Quote(s)
	}
	return s
}

// Equal reports whether two proposals describe the same effect.
func Equal(a, b Proposal) bool {
	switch x := a.(type) {
	case CreateFile:
		y, ok := b.(CreateFile)
		return ok && x == y
	case ModifyFile:
		y, ok := b.(ModifyFile)
		return ok && x == y
	case DeleteFile:
		y, ok := b.(DeleteFile)
		return ok && x == y
	case RunCommand:
		y, ok := b.(RunCommand)
		return ok && x.Command == y.Command && slices.Equal(x.Args, y.Args)
	default:
		return false
	}
}

// sameEffect reports whether two file proposals that resolve to the same
// canonical path leave the same result, however the path was spelled.
func sameEffect(a, b Proposal) bool {
	switch x := a.(type) {
	case CreateFile:
		y, ok := b.(CreateFile)
		return ok && x.Content == y.Content
	case ModifyFile:
		y, ok := b.(ModifyFile)
		return ok && x.Content == y.Content
	case DeleteFile:
		_, ok := b.(DeleteFile)
		return ok
	default:
		return false
	}
}

// isFile reports whether p carries a path.
func isFile(p Proposal) bool {
	return p.Kind() != KindRunCommand
}
