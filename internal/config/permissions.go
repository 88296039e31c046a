// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions checks if the extensions directory is writable by
// group or others and logs a warning if so. Anything placed there is executed
// by the host, so a shared-writable tree lets other users run code as the
// operator. The check never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Missing extensions dir is reported by the resolver.
		slog.Debug("could not stat extensions dir for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupWrite fs.FileMode = 0o020
	const otherWrite fs.FileMode = 0o002

	if perm&(groupWrite|otherWrite) != 0 {
		slog.Warn(
			"extensions dir has insecure permissions, other users can install code run by apix",
			"path", path,
			"mode", mode,
			"recommended", "0755",
		)
	}
}
