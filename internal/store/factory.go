// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package store

import (
	"sort"
	"sync"

	apixerr "github.com/apix-dev/apix/pkg/errors"
)

// DefaultBackend is used when StorageConfig.Backend is empty.
const DefaultBackend = "sqlite"

// LedgerFactory opens a ledger stored at path.
type LedgerFactory func(path string) (Ledger, error)

var (
	factories   = map[string]LedgerFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f LedgerFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return DefaultBackend
	}
	return cfg.Backend
}

// NewLedger opens the ledger for the configured backend.
func NewLedger(cfg *StorageConfig, path string) (Ledger, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, apixerr.Errorf(apixerr.CodeLedgerBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(path)
}
