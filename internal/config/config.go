// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level apix configuration.
type Config struct {
	Home          string         `mapstructure:"home"`
	ExtensionsDir string         `mapstructure:"extensions_dir"`
	Project       ProjectConfig  `mapstructure:"project"`
	Storage       StorageConfig  `mapstructure:"storage"`
	Versions      VersionsConfig `mapstructure:"versions"`
	Host          HostConfig     `mapstructure:"host"`
	Plan          PlanConfig     `mapstructure:"plan"`
	Log           LogConfig      `mapstructure:"log"`
}

// ProjectConfig locates the project manifest and the per-project state dir.
type ProjectConfig struct {
	Manifest string `mapstructure:"manifest"`
	StateDir string `mapstructure:"state_dir"`
}

// StorageConfig selects the event ledger backend. Path is relative to the
// project state dir unless absolute.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// VersionsConfig controls what happens when the installed extension version
// differs from the one the project requires.
type VersionsConfig struct {
	Policy string `mapstructure:"policy"`
}

// HostConfig bounds extension execution.
type HostConfig struct {
	ExecTimeout  time.Duration `mapstructure:"exec_timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// PlanConfig controls how plans are presented for review.
type PlanConfig struct {
	Diff  bool `mapstructure:"diff"`
	Color bool `mapstructure:"color"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	home := defaultHome()
	v.SetDefault("home", home)
	v.SetDefault("extensions_dir", filepath.Join(home, "extensions"))
	v.SetDefault("project.manifest", "monorepo.toml")
	v.SetDefault("project.state_dir", ".apix")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.path", "state.db")
	v.SetDefault("versions.policy", "strict")
	v.SetDefault("host.exec_timeout", time.Duration(0))
	v.SetDefault("host.probe_timeout", 5*time.Second)
	v.SetDefault("plan.diff", true)
	v.SetDefault("plan.color", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// SetupEnv binds APIX_ prefixed environment variables, e.g.
// APIX_EXTENSIONS_DIR or APIX_STORAGE_BACKEND.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("APIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix APIX_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apixerr.Errorf(apixerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apixerr.Errorf(apixerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.ExtensionsDir == "" {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue, "config: extensions_dir must not be empty"))
	}

	errs = append(errs, c.validateProject()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateVersions()...)
	errs = append(errs, c.validateHost()...)
	errs = append(errs, c.validateLog()...)

	return errs
}

func (c *Config) validateProject() []error {
	var errs []error

	if c.Project.Manifest == "" {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue, "config: project.manifest must not be empty"))
	}
	if c.Project.StateDir == "" {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue, "config: project.state_dir must not be empty"))
	} else if filepath.IsAbs(c.Project.StateDir) || strings.HasPrefix(filepath.Clean(c.Project.StateDir), "..") {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: project.state_dir must be a path inside the project, got %q",
			c.Project.StateDir,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}
	if c.Storage.Path == "" {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue, "config: storage.path must not be empty"))
	}

	return errs
}

func (c *Config) validateVersions() []error {
	validPolicies := map[string]bool{"strict": true, "warn": true}
	if !validPolicies[c.Versions.Policy] {
		return []error{apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: versions.policy must be one of [strict, warn], got %q",
			c.Versions.Policy,
		)}
	}
	return nil
}

func (c *Config) validateHost() []error {
	var errs []error

	if c.Host.ExecTimeout < 0 {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: host.exec_timeout must not be negative, got %s",
			c.Host.ExecTimeout,
		))
	}
	if c.Host.ProbeTimeout <= 0 {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: host.probe_timeout must be greater than 0, got %s",
			c.Host.ProbeTimeout,
		))
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [trace, debug, info, warn, error], got %q",
			c.Log.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, apixerr.Errorf(apixerr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [text, json], got %q",
			c.Log.Format,
		))
	}

	return errs
}

// StatePath returns the absolute ledger database path for a project root.
func (c *Config) StatePath(projectRoot string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(projectRoot, c.Project.StateDir, c.Storage.Path)
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".apix"
	}
	return filepath.Join(home, ".apix")
}
