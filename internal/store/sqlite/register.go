// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package sqlite

import (
	"github.com/apix-dev/apix/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newLedger)
}

func newLedger(dbPath string) (store.Ledger, error) {
	return NewLedger(dbPath)
}
