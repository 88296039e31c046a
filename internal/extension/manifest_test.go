// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package extension_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apix-dev/apix/internal/extension"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest_Valid(t *testing.T) {
	data := `
name = "rust"
version = "1.2.0"
description = "Rust crates and workspaces"

[supported]
actions = ["create", "extend", "info"]
languages = ["rust"]
features = ["workspace", "clippy"]
`
	d, err := extension.ParseManifest([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "rust", d.Name)
	assert.Equal(t, "1.2.0", d.Version)
	assert.Equal(t, "Rust crates and workspaces", d.Description)
	assert.Equal(t, []string{"rust"}, d.Supported.Languages)
	assert.True(t, d.Supports(extension.ActionCreate))
	assert.False(t, d.Supports(extension.ActionMigrate))
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"syntax", `name = `, "manifest parse"},
		{"missing name", `version = "1.0.0"`, "name"},
		{"bad name", "name = \"../evil\"\nversion = \"1.0.0\"", "name"},
		{"missing version", `name = "rust"`, "version"},
		{"loose version", "name = \"rust\"\nversion = \"v1.0\"", "semver"},
		{"unknown action", "name = \"rust\"\nversion = \"1.0.0\"\n[supported]\nactions = [\"deploy\"]", "supported.actions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extension.ParseManifest([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, apixerr.HasCode(err, apixerr.CodeExtensionManifestInvalid))
		})
	}
}

func TestSupports_EmptyMeansAll(t *testing.T) {
	d := &extension.Descriptor{Name: "go", Version: "1.0.0"}
	for _, a := range []extension.Action{extension.ActionCreate, extension.ActionExtend, extension.ActionMigrate, extension.ActionInfo} {
		assert.True(t, d.Supports(a), a)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	_, err := extension.LoadManifest(dir)
	require.Error(t, err)
	assert.True(t, apixerr.IsNotFound(err))

	require.NoError(t, os.WriteFile(filepath.Join(dir, extension.ManifestFile),
		[]byte("name = \"rust\"\nversion = \"1.0.0\"\n"), 0o644))
	d, err := extension.LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "rust", d.Name)
}

func TestVerifyManifest(t *testing.T) {
	d := &extension.Descriptor{Name: "rust", Version: "1.2.0"}

	assert.NoError(t, extension.VerifyManifest(d, "rust", "1.2.0"))

	err := extension.VerifyManifest(d, "rust", "1.3.0")
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodeExtensionVersionMismatch))
	assert.Equal(t, "1.3.0", apixerr.FieldsOf(err)["version"])

	err = extension.VerifyManifest(d, "go", "1.2.0")
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodeExtensionManifestInvalid))
}

func TestLayout(t *testing.T) {
	l := extension.Layout{Root: "/ext"}
	assert.Equal(t, filepath.Join("/ext", "rust", "1.0.0", "rust.lua"), l.SourcePath("rust", "1.0.0"))
	assert.Equal(t, filepath.Join("/ext", "rust", "data"), l.DataDir("rust"))
	assert.Equal(t, filepath.Join("/ext", "rust", "1.0.0"), l.VersionDir("rust", "1.0.0"))
}
