// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"github.com/spf13/cobra"
)

func newExtendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extend <extension> [args...]",
		Short: "Run an extension's extend entry point",
		Long:  "Run an extension's extend entry point. Arguments after the extension name are passed through unchanged.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newRunner(cmd, isDryRun(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Extend(cmd.Context(), args[0], args[1:], applyOptions(cmd))
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res, isDryRun(cmd))
			return nil
		},
	}
	addApplyFlags(cmd)
	// Flags after the extension name belong to the extension.
	cmd.Flags().SetInterspersed(false)
	return cmd
}
