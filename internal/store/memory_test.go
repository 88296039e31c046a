// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/apix-dev/apix/internal/store"
	apixerr "github.com/apix-dev/apix/pkg/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKey_Validate(t *testing.T) {
	tests := []struct {
		name string
		key  store.EventKey
		ok   bool
	}{
		{"complete", store.EventKey{Extension: "rust", Project: "p", Action: "create"}, true},
		{"with package", store.EventKey{Extension: "rust", Project: "p", Package: "api", Action: "extend"}, true},
		{"no extension", store.EventKey{Project: "p", Action: "create"}, false},
		{"no project", store.EventKey{Extension: "rust", Action: "create"}, false},
		{"blank action", store.EventKey{Extension: "rust", Project: "p", Action: "  "}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apixerr.CodeLedgerInvalidInput, apixerr.CodeOf(err))
		})
	}
}

func TestMemoryLedger_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := store.NewMemoryLedger()
	key := store.EventKey{Extension: "rust", Project: "p", Action: "migrate", Args: []string{"0.1.0"}}

	require.NoError(t, l.Record(ctx, store.Event{Key: key, Version: "1.0.0"}))
	require.NoError(t, l.Record(ctx, store.Event{Key: key, Version: "2.0.0"}))

	events := l.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "1.0.0", events[0].Version)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].RecordedAt.IsZero())
}

func TestMemoryLedger_InstalledVersion(t *testing.T) {
	ctx := context.Background()
	l := store.NewMemoryLedger()

	_, err := l.InstalledVersion(ctx, "rust")
	assert.True(t, apixerr.IsNotFound(err))

	require.NoError(t, l.RecordInstalledVersion(ctx, "rust", "1.0.0"))
	v, err := l.InstalledVersion(ctx, "rust")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)
}

func genKey() gopter.Gen {
	words := []string{"a", "b", "c"}
	word := gen.IntRange(0, len(words)-1).Map(func(n int) string { return words[n] })
	return gopter.CombineGens(
		word, word, word, word,
		gen.SliceOfN(2, word),
	).Map(func(v []interface{}) store.EventKey {
		return store.EventKey{
			Extension: v[0].(string),
			Project:   v[1].(string),
			Package:   v[2].(string),
			Action:    v[3].(string),
			Args:      v[4].([]string),
		}
	})
}

func TestMemoryLedger_ExistsMatchesRecordedKeysOnly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("exists is true exactly for recorded keys", prop.ForAll(
		func(recorded, probe store.EventKey) bool {
			ctx := context.Background()
			l := store.NewMemoryLedger()

			if ok, _ := l.Exists(ctx, recorded); ok {
				return false
			}
			if err := l.Record(ctx, store.Event{Key: recorded}); err != nil {
				return false
			}
			ok, err := l.Exists(ctx, recorded)
			if err != nil || !ok {
				return false
			}
			ok, err = l.Exists(ctx, probe)
			return err == nil && ok == recorded.Equal(probe)
		},
		genKey(),
		genKey(),
	))

	properties.TestingRun(t)
}
