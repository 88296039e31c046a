// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package sandbox

import (
	"io"
	"os"
	"sort"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// MaxReadSize bounds a single read through a File.
const MaxReadSize = 32 << 20

// File is a read-only handle to a regular file inside a View.
type File struct {
	f    *os.File
	path string
}

// Path returns the canonical path of the file.
func (f *File) Path() string { return f.path }

// ReadAll reads the remaining content, up to MaxReadSize.
func (f *File) ReadAll() ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f.f, MaxReadSize+1))
	if err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeSandboxReadFailure, "reading file", apixerr.FieldPath(f.path))
	}
	if len(data) > MaxReadSize {
		return nil, apixerr.Errorf(apixerr.CodeSandboxReadFailure, "reading %s: file exceeds %d bytes", f.path, MaxReadSize)
	}
	return data, nil
}

// ReadAt reads up to n bytes starting at off. A short read at end of file is
// not an error.
func (f *File) ReadAt(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || n > MaxReadSize {
		return nil, apixerr.Errorf(apixerr.CodeSandboxReadFailure, "reading %s: invalid range %d+%d", f.path, off, n)
	}
	buf := make([]byte, n)
	read, err := f.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, apixerr.Wrap(err, apixerr.CodeSandboxReadFailure, "reading file", apixerr.FieldPath(f.path))
	}
	return buf[:read], nil
}

// Close releases the handle.
func (f *File) Close() error {
	return f.f.Close()
}

// Open opens a regular file inside the view for reading.
func (v *View) Open(path string) (*File, error) {
	c, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(c)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apixerr.New(apixerr.CodeSandboxPathInvalid, "file does not exist", apixerr.FieldPath(path))
		}
		return nil, apixerr.Wrap(err, apixerr.CodeSandboxReadFailure, "opening file", apixerr.FieldPath(path))
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, apixerr.Wrap(err, apixerr.CodeSandboxReadFailure, "opening file", apixerr.FieldPath(path))
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, apixerr.New(apixerr.CodeSandboxPathInvalid, "not a regular file", apixerr.FieldPath(path))
	}
	return &File{f: f, path: c}, nil
}

// ReadFile is Open followed by ReadAll.
func (v *View) ReadFile(path string) ([]byte, error) {
	f, err := v.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.ReadAll()
}

// Entry describes one directory entry returned by List.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// List returns the entries of a directory inside the view, sorted by name.
// Entries that resolve into a reserved sub-tree are omitted.
func (v *View) List(path string) ([]Entry, error) {
	c, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(c)
	if err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeSandboxReadFailure, "listing directory", apixerr.FieldPath(path))
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		child, err := canonicalize(c + string(os.PathSeparator) + d.Name())
		if err != nil || !v.Contains(child) {
			continue
		}
		info, err := os.Stat(child)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: d.Name(), IsDir: info.IsDir(), Size: info.Size()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Exists reports whether path exists inside the view. A path outside the
// view is an error, not false.
func (v *View) Exists(path string) (bool, error) {
	c, err := v.Resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(c); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apixerr.Wrap(err, apixerr.CodeSandboxReadFailure, "checking path", apixerr.FieldPath(path))
	}
	return true, nil
}
