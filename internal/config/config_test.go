// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apix-dev/apix/internal/config"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "monorepo.toml", cfg.Project.Manifest)
	assert.Equal(t, ".apix", cfg.Project.StateDir)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "strict", cfg.Versions.Policy)
	assert.Equal(t, 5*time.Second, cfg.Host.ProbeTimeout)
	assert.Equal(t, time.Duration(0), cfg.Host.ExecTimeout)
	assert.True(t, cfg.Plan.Diff)
	assert.Equal(t, filepath.Join(cfg.Home, "extensions"), cfg.ExtensionsDir)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "apix.yaml")

	content := `
extensions_dir: /opt/apix/extensions
versions:
  policy: warn
host:
  exec_timeout: 30s
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/opt/apix/extensions", cfg.ExtensionsDir)
	assert.Equal(t, "warn", cfg.Versions.Policy)
	assert.Equal(t, 30*time.Second, cfg.Host.ExecTimeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APIX_EXTENSIONS_DIR", "/srv/extensions")
	t.Setenv("APIX_HOST_PROBE_TIMEOUT", "2s")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv/extensions", cfg.ExtensionsDir)
	assert.Equal(t, 2*time.Second, cfg.Host.ProbeTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, apixerr.HasCode(err, apixerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "apix.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("versions:\n  policy: lenient\n"), 0o644))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "versions.policy")
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			ExtensionsDir: "/ext",
			Project:       config.ProjectConfig{Manifest: "monorepo.toml", StateDir: ".apix"},
			Storage:       config.StorageConfig{Backend: "sqlite", Path: "state.db"},
			Versions:      config.VersionsConfig{Policy: "strict"},
			Host:          config.HostConfig{ProbeTimeout: time.Second},
			Log:           config.LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"empty extensions dir", func(c *config.Config) { c.ExtensionsDir = "" }, "extensions_dir"},
		{"absolute state dir", func(c *config.Config) { c.Project.StateDir = "/tmp/state" }, "project.state_dir"},
		{"escaping state dir", func(c *config.Config) { c.Project.StateDir = "../state" }, "project.state_dir"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"unknown policy", func(c *config.Config) { c.Versions.Policy = "loose" }, "versions.policy"},
		{"negative exec timeout", func(c *config.Config) { c.Host.ExecTimeout = -time.Second }, "host.exec_timeout"},
		{"zero probe timeout", func(c *config.Config) { c.Host.ProbeTimeout = 0 }, "host.probe_timeout"},
		{"unknown log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
			assert.True(t, apixerr.HasCode(errs[0], apixerr.CodeConfigValidateInvalidValue))
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := config.Config{}
	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 6)
}

func TestStatePath(t *testing.T) {
	cfg := config.Config{
		Project: config.ProjectConfig{StateDir: ".apix"},
		Storage: config.StorageConfig{Path: "state.db"},
	}
	assert.Equal(t, filepath.Join("/work/repo", ".apix", "state.db"), cfg.StatePath("/work/repo"))

	cfg.Storage.Path = "/var/lib/apix/state.db"
	assert.Equal(t, "/var/lib/apix/state.db", cfg.StatePath("/work/repo"))
}

func TestSetDefaultsAndEnvOnSharedViper(t *testing.T) {
	t.Setenv("APIX_LOG_LEVEL", "debug")

	v := viper.New()
	config.SetDefaults(v)
	config.SetupEnv(v)

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestDefaultConfigYAMLLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apix.yaml")
	require.NoError(t, os.WriteFile(path, config.DefaultConfigYAML, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Versions.Policy)
}
