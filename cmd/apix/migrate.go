// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <extension>",
		Short: "Upgrade the project to the newest installed extension version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newRunner(cmd, isDryRun(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Migrate(cmd.Context(), args[0], applyOptions(cmd))
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
