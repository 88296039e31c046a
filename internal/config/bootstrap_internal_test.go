// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultConfig_WritesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "apix.yaml")

	created, err := writeDefaultConfig(path)
	require.NoError(t, err)
	assert.True(t, created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigYAML, data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("versions:\n  policy: warn\n"), 0o600))
	created, err = writeDefaultConfig(path)
	require.NoError(t, err)
	assert.False(t, created, "existing config must not be overwritten")

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "versions:\n  policy: warn\n", string(data))
}

func TestWriteDefaultConfig_UnwritableDir(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, nil, 0o600))

	created, err := writeDefaultConfig(filepath.Join(parent, "apix.yaml"))
	require.Error(t, err)
	assert.False(t, created)
}

func TestBootstrapConfig_SeedsUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	want := filepath.Join(home, ".config", "apix", "apix.yaml")
	assert.Equal(t, want, BootstrapConfig())
	assert.FileExists(t, want)
	assert.Empty(t, BootstrapConfig())
}
