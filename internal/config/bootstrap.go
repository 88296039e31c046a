// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package config

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// DefaultConfigYAML documents every apix key with its default value:
// extensions_dir, project.*, storage.*, versions.policy, host.*, plan.* and log.*.
//
//go:embed apix.yaml.default
var DefaultConfigYAML []byte

// UserConfigPath is the per-user apix.yaml that viper searches in
// $HOME/.config/apix.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apixerr.Errorf(apixerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "apix", "apix.yaml"), nil
}

// BootstrapConfig gives a first run something to edit: when no apix.yaml was
// found anywhere, it seeds UserConfigPath with DefaultConfigYAML so the
// extensions dir and version policy can be changed without reading the
// source. It returns the path only if it created the file. Any failure is
// logged at debug level; apix runs on built-in defaults regardless.
func BootstrapConfig() string {
	path, err := UserConfigPath()
	if err != nil {
		slog.Debug("not seeding apix.yaml", "error", err)
		return ""
	}

	created, err := writeDefaultConfig(path)
	if err != nil {
		slog.Debug("not seeding apix.yaml", "path", path, "error", err)
		return ""
	}
	if !created {
		return ""
	}

	slog.Info("wrote default apix.yaml", "path", path)
	return path
}

// writeDefaultConfig creates path exclusively, so a config written by the
// operator is never replaced. It reports false for an existing file.
func writeDefaultConfig(path string) (bool, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, apixerr.Wrap(err, apixerr.CodeConfigLoadReadFailure, "creating config directory",
			apixerr.FieldPath(dir))
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, apixerr.Wrap(err, apixerr.CodeConfigLoadReadFailure, "creating apix.yaml",
			apixerr.FieldPath(path))
	}

	if _, err := f.Write(DefaultConfigYAML); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, apixerr.Wrap(err, apixerr.CodeConfigLoadReadFailure, "writing apix.yaml",
			apixerr.FieldPath(path))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, apixerr.Wrap(err, apixerr.CodeConfigLoadReadFailure, "writing apix.yaml",
			apixerr.FieldPath(path))
	}
	return true, nil
}
