// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package sandbox scopes extension filesystem access to a fixed set of
// canonical root directories.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// View is a read-only window onto the filesystem limited to its roots.
// Every path is canonicalised (made absolute, symlinks resolved, dot segments
// removed) before it is compared with the roots, which were canonicalised
// once in New.
type View struct {
	base     string
	roots    []string
	reserved []string
}

// Option configures a View.
type Option func(*options)

type options struct {
	reserved []string
}

// WithReserved excludes sub-trees from the view even when they sit inside
// a root. Relative paths are taken relative to the base root.
func WithReserved(paths ...string) Option {
	return func(o *options) {
		o.reserved = append(o.reserved, paths...)
	}
}

// New builds a View. base is always allowed and anchors relative paths;
// roots adds further allowed directories. Every root must be an existing
// directory.
func New(base string, roots []string, opts ...Option) (*View, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	canonicalBase, err := canonicalRoot(base)
	if err != nil {
		return nil, err
	}

	v := &View{base: canonicalBase, roots: []string{canonicalBase}}
	for _, r := range roots {
		c, err := canonicalRoot(r)
		if err != nil {
			return nil, err
		}
		if !v.hasRoot(c) {
			v.roots = append(v.roots, c)
		}
	}

	for _, r := range o.reserved {
		c, err := v.Canonicalize(r)
		if err != nil {
			return nil, err
		}
		v.reserved = append(v.reserved, c)
	}

	return v, nil
}

func canonicalRoot(root string) (string, error) {
	if root == "" {
		return "", apixerr.New(apixerr.CodeSandboxPathInvalid, "invalid sandbox root: must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", apixerr.Wrap(err, apixerr.CodeSandboxPathInvalid, "resolving sandbox root", apixerr.FieldPath(root))
	}
	c, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apixerr.Wrap(err, apixerr.CodeSandboxPathInvalid, "resolving sandbox root", apixerr.FieldPath(root))
	}
	info, err := os.Stat(c)
	if err != nil {
		return "", apixerr.Wrap(err, apixerr.CodeSandboxPathInvalid, "resolving sandbox root", apixerr.FieldPath(root))
	}
	if !info.IsDir() {
		return "", apixerr.New(apixerr.CodeSandboxPathInvalid, "sandbox root is not a directory", apixerr.FieldPath(root))
	}
	return c, nil
}

func (v *View) hasRoot(c string) bool {
	for _, r := range v.roots {
		if r == c {
			return true
		}
	}
	return false
}

// Base returns the canonical base root.
func (v *View) Base() string { return v.base }

// Roots returns the canonical allowed roots, base first.
func (v *View) Roots() []string {
	out := make([]string, len(v.roots))
	copy(out, v.roots)
	return out
}

// Canonicalize returns the canonical form of path without checking it
// against the roots. The path does not need to exist: the longest existing
// prefix has its symlinks resolved and the remainder is appended lexically.
func (v *View) Canonicalize(path string) (string, error) {
	if path == "" {
		return "", apixerr.New(apixerr.CodeSandboxPathInvalid, "invalid path: must not be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", apixerr.Errorf(apixerr.CodeSandboxPathInvalid, "invalid path %q: contains NUL", path)
	}
	if !filepath.IsAbs(path) {
		// Deliberately not filepath.Join: cleaning "link/.." lexically
		// would hide where the link points.
		path = v.base + string(filepath.Separator) + path
	}
	return canonicalize(path)
}

func canonicalize(abs string) (string, error) {
	vol := filepath.VolumeName(abs)
	parts := strings.Split(filepath.ToSlash(abs[len(vol):]), "/")
	resolved := vol + string(filepath.Separator)

	// Every component is checked on disk, including those after a missing
	// one: a ".." can climb back out of a missing directory into an
	// existing one that holds links.
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, part)
		info, err := os.Lstat(next)
		if err != nil {
			if os.IsNotExist(err) {
				resolved = next
				continue
			}
			return "", apixerr.Wrap(err, apixerr.CodeSandboxPathInvalid, "canonicalising path", apixerr.FieldPath(abs))
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(next)
			if err != nil {
				return "", apixerr.Wrap(err, apixerr.CodeSandboxPathInvalid, "unresolvable symlink", apixerr.FieldPath(next))
			}
			resolved = target
			continue
		}
		resolved = next
	}

	return resolved, nil
}

// Contains reports whether an already canonical path lies inside a root and
// outside every reserved sub-tree.
func (v *View) Contains(canonical string) bool {
	for _, r := range v.reserved {
		if within(r, canonical) {
			return false
		}
	}
	for _, r := range v.roots {
		if within(r, canonical) {
			return true
		}
	}
	return false
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Resolve canonicalises path and requires it to be inside the view.
func (v *View) Resolve(path string) (string, error) {
	c, err := v.Canonicalize(path)
	if err != nil {
		return "", err
	}
	if !v.Contains(c) {
		return "", apixerr.New(apixerr.CodeSandboxAccessDenied,
			"access denied: "+path+" is outside the sandbox",
			apixerr.FieldPath(path),
			apixerr.Field("canonical", c))
	}
	return c, nil
}

// Rel renders a canonical path for display: relative to the base root when
// inside it, absolute otherwise.
func (v *View) Rel(canonical string) string {
	if within(v.base, canonical) {
		if rel, err := filepath.Rel(v.base, canonical); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return canonical
}
