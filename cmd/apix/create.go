// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <extension> <name>",
		Short: "Scaffold a new project or package with an extension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newRunner(cmd, isDryRun(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Create(cmd.Context(), args[0], args[1], applyOptions(cmd))
			if err != nil {
				return err
			}
			report(cmd.OutOrStdout(), res, isDryRun(cmd))
			return nil
		},
	}
	addApplyFlags(cmd)
	return cmd
}
