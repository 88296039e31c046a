// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package store

// StorageConfig controls which backend the ledger factory uses.
type StorageConfig struct {
	Backend string // "sqlite" by default; "memory" keeps events for the process lifetime only.
}
