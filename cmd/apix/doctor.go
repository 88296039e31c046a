// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apix-dev/apix/internal/extension"
	"github.com/apix-dev/apix/internal/project"
	"github.com/apix-dev/apix/internal/vcs"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, configuration, installed extensions, git, the project manifest, and disk space.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	extDir := resolveExtensionsDir()
	projectDir, _ := cmd.Flags().GetString("project")

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", checkConfig},
		{"Extensions", func() string { return checkExtensions(extDir) }},
		{"Git", checkGit},
		{"Project", func() string { return checkProject(projectDir) }},
		{"Disk Space", func() string { return checkDiskSpace(projectDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveExtensionsDir returns the extensions directory from viper or the default.
func resolveExtensionsDir() string {
	if dir := viper.GetString("extensions_dir"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".apix", "extensions")
}

func checkBinary() string {
	return fmt.Sprintf("apix %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkExtensions(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("no extensions directory at %s", dir)
		}
		return fmt.Sprintf("error reading extensions: %s", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		versions, err := extension.InstalledVersions(dir, e.Name())
		if err != nil || len(versions) == 0 {
			continue
		}
		names = append(names, fmt.Sprintf("%s@%s", e.Name(), versions[len(versions)-1]))
	}

	if len(names) == 0 {
		return "no extensions installed"
	}
	return fmt.Sprintf("%d extension(s) in %s: %s", len(names), dir, strings.Join(names, ", "))
}

func checkGit() string {
	if !(vcs.Git{}).Available() {
		return "git not found (dirty-tree checks will refuse to apply)"
	}
	return "available"
}

func checkProject(dir string) string {
	name := viper.GetString("project.manifest")
	m, err := project.Load(dir, name)
	if err != nil {
		if apixerr.HasCode(err, apixerr.CodeProjectManifestNotFound) {
			return fmt.Sprintf("no %s in %s", name, dir)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s, %d extension requirement(s)", m.Name(), len(m.ExtensionNames()))
}

func checkDiskSpace(dir string) string {
	path := dir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if the project doesn't exist.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
