// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <extension>",
		Short: "Show an extension's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newRunner(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			text, err := s.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
