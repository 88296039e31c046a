// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package store

import (
	"context"
	"sync"
	"time"

	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/google/uuid"
)

func init() {
	RegisterBackend("memory", func(string) (Ledger, error) { return NewMemoryLedger(), nil })
}

var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger keeps events in process memory. Dry runs and tests use it.
type MemoryLedger struct {
	mu       sync.Mutex
	events   []Event
	versions map[string]string
	now      func() time.Time
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{versions: map[string]string{}, now: time.Now}
}

// Record implements Ledger. Recording an existing key is a no-op.
func (m *MemoryLedger) Record(_ context.Context, e Event) error {
	if err := e.Key.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.Key.Equal(e.Key) {
			return nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = m.now().UTC()
	}
	e.Key.Args = append([]string(nil), e.Key.Args...)
	m.events = append(m.events, e)
	return nil
}

// Exists implements Ledger.
func (m *MemoryLedger) Exists(_ context.Context, key EventKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Key.Equal(key) {
			return true, nil
		}
	}
	return false, nil
}

// Events returns the recorded events in insertion order.
func (m *MemoryLedger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// RecordInstalledVersion implements Ledger.
func (m *MemoryLedger) RecordInstalledVersion(_ context.Context, extension, version string) error {
	if extension == "" || version == "" {
		return apixerr.New(apixerr.CodeLedgerInvalidInput, "installed version: extension and version are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[extension] = version
	return nil
}

// InstalledVersion implements Ledger.
func (m *MemoryLedger) InstalledVersion(_ context.Context, extension string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[extension]
	if !ok {
		return "", apixerr.New(apixerr.CodeLedgerVersionNotFound,
			"no installed version recorded for "+extension, apixerr.FieldExtension(extension))
	}
	return v, nil
}

// Close implements Ledger.
func (m *MemoryLedger) Close() error { return nil }
