// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package main

import (
	"fmt"
	"os"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "apix:", err)
		os.Exit(apixerr.ExitCode(err))
	}
}
