// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/apix-dev/apix/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

func openLedger(t *testing.T) *sqlite.Ledger {
	t.Helper()
	l, err := sqlite.NewLedger(testDBPath(t, "state"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}
