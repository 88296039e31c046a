// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/apix-dev/apix/internal/config"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root apix command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "apix",
		Short:         "apix runs sandboxed project extensions",
		Long:          "apix loads versioned Lua extensions that propose changes to a project; every change is reviewed and applied as one batch.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags map to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().StringP("project", "p", ".", "project root")
	root.PersistentFlags().String("extensions-dir", "", "directory holding installed extensions")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newCreateCmd(),
		newExtendCmd(),
		newMigrateCmd(),
		newInfoCmd(),
		newVersionCmd(),
		newDoctorCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return apixerr.Errorf(apixerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted: with it Viper also tries the bare name,
		// which collides with an ./apix binary in the working directory.
		v.SetConfigName("apix")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/apix")
		v.AddConfigPath("/etc/apix")
		// No config file is fine; defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return apixerr.Errorf(apixerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return apixerr.Errorf(apixerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("extensions_dir", flags.Lookup("extensions-dir")); err != nil {
		return apixerr.Errorf(apixerr.CodeCLISetupFailure, "binding extensions-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return apixerr.Errorf(apixerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}
	return nil
}

// setupLogging installs the process logger on w.
func setupLogging(w io.Writer) {
	v := viper.GetViper()

	level := slog.LevelInfo
	switch strings.ToLower(v.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if v.GetString("log.format") == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
