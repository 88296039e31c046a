// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

// Package store defines the event ledger that makes repeated extension
// actions idempotent, and the registry of ledger backends.
package store

import (
	"context"
	"strings"
	"time"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// Ledger records actions that have been durably applied to a project.
// Record must only be called after the plan for the action was applied.
type Ledger interface {
	Record(ctx context.Context, event Event) error
	Exists(ctx context.Context, key EventKey) (bool, error)

	// Installed versions remembered per extension, used by migrate to know
	// which version a project was last touched by.
	RecordInstalledVersion(ctx context.Context, extension, version string) error
	InstalledVersion(ctx context.Context, extension string) (string, error)

	Close() error
}

// EventKey identifies one logical action. Two keys are the same action
// only when every field matches, including the order of Args.
type EventKey struct {
	Extension string
	Project   string
	Package   string
	Action    string
	Args      []string
}

// Event is one applied action.
type Event struct {
	ID         string
	Key        EventKey
	Version    string
	RecordedAt time.Time
}

// Validate checks the fields every ledger requires.
func (k EventKey) Validate() error {
	if strings.TrimSpace(k.Extension) == "" {
		return apixerr.New(apixerr.CodeLedgerInvalidInput, "event: extension is required")
	}
	if strings.TrimSpace(k.Project) == "" {
		return apixerr.New(apixerr.CodeLedgerInvalidInput, "event: project is required")
	}
	if strings.TrimSpace(k.Action) == "" {
		return apixerr.New(apixerr.CodeLedgerInvalidInput, "event: action is required")
	}
	return nil
}

// Equal reports whether two keys name the same action.
func (k EventKey) Equal(o EventKey) bool {
	if k.Extension != o.Extension || k.Project != o.Project || k.Package != o.Package ||
		k.Action != o.Action || len(k.Args) != len(o.Args) {
		return false
	}
	for i := range k.Args {
		if k.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}
