// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package extension

import "path/filepath"

// Layout describes where extensions live on disk:
//
//	<Root>/<name>/<version>/extension.toml
//	<Root>/<name>/<version>/<name>.lua
//	<Root>/<name>/data/
type Layout struct {
	Root string
}

// ExtensionDir is the directory holding every installed version of name.
func (l Layout) ExtensionDir(name string) string {
	return filepath.Join(l.Root, name)
}

// VersionDir is the install directory of one version.
func (l Layout) VersionDir(name, version string) string {
	return filepath.Join(l.Root, name, version)
}

// SourcePath is the script entry file of one version.
func (l Layout) SourcePath(name, version string) string {
	return filepath.Join(l.Root, name, version, name+".lua")
}

// DataDir is the private data directory shared by all versions of name.
func (l Layout) DataDir(name string) string {
	return filepath.Join(l.Root, name, "data")
}
