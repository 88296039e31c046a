// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package project reads and updates the monorepo manifest that records
// which extension versions a project depends on.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// DefaultManifest is the manifest file name at the project root.
const DefaultManifest = "monorepo.toml"

// Manifest is the decoded monorepo.toml.
type Manifest struct {
	Repo       Repo                   `toml:"repo"`
	Projects   map[string]Unit        `toml:"projects,omitempty"`
	Packages   map[string]Unit        `toml:"packages,omitempty"`
	Extensions map[string]Requirement `toml:"extensions,omitempty"`
	// Plugins is the older name of the extensions table. Load folds it
	// into Extensions.
	Plugins map[string]Requirement `toml:"plugins,omitempty"`

	path string
}

// Repo describes the monorepo itself.
type Repo struct {
	Name     string `toml:"name"`
	Version  string `toml:"version,omitempty"`
	Template string `toml:"template,omitempty"`
}

// Unit is a project or package inside the monorepo.
type Unit struct {
	Path     string `toml:"path"`
	Language string `toml:"language,omitempty"`
}

// Requirement is the version constraint recorded for an extension. It is
// written either as a bare string or as a table with a version key.
type Requirement struct {
	Version string
}

// UnmarshalTOML implements toml.Unmarshaler.
func (r *Requirement) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		r.Version = v
	case map[string]any:
		s, ok := v["version"].(string)
		if !ok {
			return fmt.Errorf("extension requirement table needs a string version")
		}
		r.Version = s
	default:
		return fmt.Errorf("extension requirement must be a string or a table, got %T", data)
	}
	return nil
}

// MarshalText always writes the short string form.
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.Version), nil
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, apixerr.Wrap(err, apixerr.CodeProjectManifestInvalidFormat, "parsing project manifest")
	}
	if len(m.Plugins) > 0 {
		if m.Extensions == nil {
			m.Extensions = map[string]Requirement{}
		}
		for name, req := range m.Plugins {
			if _, ok := m.Extensions[name]; !ok {
				m.Extensions[name] = req
			}
		}
		m.Plugins = nil
	}
	return &m, nil
}

// Load reads root/name. An empty name means DefaultManifest.
func Load(root, name string) (*Manifest, error) {
	if name == "" {
		name = DefaultManifest
	}
	path := filepath.Join(root, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apixerr.New(apixerr.CodeProjectManifestNotFound,
				"project manifest not found: "+path, apixerr.FieldPath(path))
		}
		return nil, apixerr.Wrap(err, apixerr.CodeProjectManifestInvalidFormat, "reading project manifest",
			apixerr.FieldPath(path))
	}

	m, err := Parse(data)
	if err != nil {
		return nil, apixerr.With(err, apixerr.FieldPath(path))
	}
	m.path = path
	return m, nil
}

// Path is the file the manifest was loaded from, if any.
func (m *Manifest) Path() string { return m.path }

// Name is the project name used as the ledger identity. It falls back to
// the directory holding the manifest.
func (m *Manifest) Name() string {
	if m.Repo.Name != "" {
		return m.Repo.Name
	}
	if m.path != "" {
		return filepath.Base(filepath.Dir(m.path))
	}
	return ""
}

// Requirement returns the recorded constraint for an extension.
func (m *Manifest) Requirement(name string) (string, bool) {
	req, ok := m.Extensions[name]
	if !ok || req.Version == "" {
		return "", false
	}
	return req.Version, true
}

// ExtensionNames lists the extensions the manifest requires, sorted.
func (m *Manifest) ExtensionNames() []string {
	names := make([]string, 0, len(m.Extensions))
	for name := range m.Extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithVersion returns a copy of m recording version for extension.
func (m *Manifest) WithVersion(extension, version string) *Manifest {
	out := *m
	out.Extensions = make(map[string]Requirement, len(m.Extensions)+1)
	for k, v := range m.Extensions {
		out.Extensions[k] = v
	}
	out.Extensions[extension] = Requirement{Version: version}
	return &out
}

// Encode renders the manifest as TOML.
func (m *Manifest) Encode() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return "", apixerr.Wrap(err, apixerr.CodeProjectManifestWriteFailure, "encoding project manifest")
	}
	return buf.String(), nil
}
