// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apix-dev/apix/internal/config"
	"github.com/apix-dev/apix/internal/extension"
	"github.com/apix-dev/apix/internal/plan"
	"github.com/apix-dev/apix/internal/runner"
	"github.com/apix-dev/apix/internal/store"
	_ "github.com/apix-dev/apix/internal/store/sqlite"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadConfig decodes the global viper into a validated Config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	config.WarnInsecurePermissions(cfg.ExtensionsDir)
	return cfg, nil
}

// projectRoot returns the absolute --project directory.
func projectRoot(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("project")
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", apixerr.Errorf(apixerr.CodeCLIInputInvalid, "resolving project %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", apixerr.New(apixerr.CodeCLIInputInvalid, "project is not a directory",
			apixerr.FieldPath(abs))
	}
	return abs, nil
}

// openLedger opens the project ledger. Read-only invocations fall back to
// an in-memory ledger so they never create state in the project.
func openLedger(cfg *config.Config, root string, readOnly bool) (store.Ledger, error) {
	path := cfg.StatePath(root)
	if readOnly {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return store.NewMemoryLedger(), nil
		}
	}
	return store.NewLedger(&store.StorageConfig{Backend: cfg.Storage.Backend}, path)
}

// session bundles a Runner with the ledger it must close.
type session struct {
	*runner.Runner
	ledger store.Ledger
}

func (s *session) Close() {
	if err := s.ledger.Close(); err != nil {
		slog.Warn("closing ledger", "error", err)
	}
}

// newRunner wires a Runner from the global config and command flags.
func newRunner(cmd *cobra.Command, readOnly bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := projectRoot(cmd)
	if err != nil {
		return nil, err
	}
	ledger, err := openLedger(cfg, root, readOnly)
	if err != nil {
		return nil, err
	}

	r := runner.New(runner.Config{
		ExtensionsDir: cfg.ExtensionsDir,
		ProjectRoot:   root,
		Manifest:      cfg.Project.Manifest,
		StateDir:      cfg.Project.StateDir,
		Policy:        extension.Policy(cfg.Versions.Policy),
		ExecTimeout:   cfg.Host.ExecTimeout,
		ProbeTimeout:  cfg.Host.ProbeTimeout,
		Render:        plan.RenderOptions{Color: cfg.Plan.Color, Diff: cfg.Plan.Diff},
	}, ledger,
		runner.WithInput(cmd.InOrStdin()),
		runner.WithOutput(cmd.OutOrStdout()),
		runner.WithLogger(slog.Default()),
	)
	return &session{Runner: r, ledger: ledger}, nil
}

// addApplyFlags registers the flags shared by every mutating command.
func addApplyFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("yes", "y", false, "apply without asking for confirmation")
	cmd.Flags().Bool("allow-dirty", false, "apply even when the working tree has uncommitted changes")
	cmd.Flags().Bool("dry-run", false, "show the proposed changes and exit")
	cmd.Flags().String("format", runner.FormatText, "plan output format (text, yaml)")
}

func applyOptions(cmd *cobra.Command) runner.RunOptions {
	yes, _ := cmd.Flags().GetBool("yes")
	dirty, _ := cmd.Flags().GetBool("allow-dirty")
	dry, _ := cmd.Flags().GetBool("dry-run")
	format, _ := cmd.Flags().GetString("format")
	return runner.RunOptions{AssumeYes: yes, AllowDirty: dirty, DryRun: dry, Format: format}
}

func isDryRun(cmd *cobra.Command) bool {
	dry, _ := cmd.Flags().GetBool("dry-run")
	return dry
}

// report prints the outcome line of a run.
func report(w io.Writer, res *runner.Result, dryRun bool) {
	switch {
	case res.Skipped:
		_, _ = fmt.Fprintf(w, "%s %s: already ran %s, nothing to do\n", res.Extension, res.Version, res.Action)
	case dryRun:
		_, _ = fmt.Fprintf(w, "%s %s: dry run, %d change(s) not applied\n", res.Extension, res.Version, res.Changes)
	case res.Applied:
		_, _ = fmt.Fprintf(w, "%s %s: applied %d change(s)\n", res.Extension, res.Version, res.Changes)
	default:
		_, _ = fmt.Fprintf(w, "%s %s: no changes\n", res.Extension, res.Version)
	}
}
