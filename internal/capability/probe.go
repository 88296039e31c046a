// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultVersionFlag is passed to CommandVersion when none is given.
const DefaultVersionFlag = "--version"

// Prober performs the read-only command probes.
type Prober interface {
	Exists(command string) bool
	Version(command, flag string) string
}

// ExecProber probes real executables.
type ExecProber struct {
	// Timeout bounds a version probe; zero means no bound.
	Timeout time.Duration
}

// Exists implements Prober.
func (p ExecProber) Exists(command string) bool {
	if strings.TrimSpace(command) == "" {
		return false
	}
	_, err := exec.LookPath(command)
	return err == nil
}

// Version implements Prober. It never fails: a command that exits non-zero
// yields "(error) <stderr>" and one that cannot run yields
// "(failed to run '<command> <flag>': <reason>)".
func (p ExecProber) Version(command, flag string) string {
	ctx := context.Background()
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, flag)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return "(error) " + strings.TrimSpace(stderr.String())
	}
	if ctx.Err() != nil {
		err = fmt.Errorf("timed out after %s", p.Timeout)
	}
	return fmt.Sprintf("(failed to run '%s %s': %s)", command, flag, err)
}
