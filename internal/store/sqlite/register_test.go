// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/autoir-dev/autoir/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStores_PartialFailureCleanup(t *testing.T) {
	tests := []struct {
		name              string
		blockPath         string
		expectErrContains string
	}{
		{
			name:              "cursor store creation fails",
			blockPath:         "cursors.db",
			expectErrContains: "creating cursor store",
		},
		{
			name:              "incident store creation fails",
			blockPath:         "incidents.db",
			expectErrContains: "creating incident store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testDir(t)

			// A directory where the database file should be makes Open fail.
			require.NoError(t, os.Mkdir(filepath.Join(dir, tt.blockPath), 0o755))

			stores, err := store.Open(&store.StorageConfig{Backend: "sqlite"}, dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErrContains)
			assert.Nil(t, stores)
		})
	}
}

func TestOpenStores_Layout(t *testing.T) {
	dir := testDir(t)

	stores, err := store.Open(&store.StorageConfig{Backend: "sqlite", EmbeddingDim: 4}, dir)
	require.NoError(t, err)
	defer func() { _ = stores.Close() }()

	require.NoError(t, stores.Vectors.EnsureSchema(t.Context(), "app_logs", 4))

	assert.FileExists(t, filepath.Join(dir, "cursors.db"))
	assert.FileExists(t, filepath.Join(dir, "incidents.db"))
	assert.FileExists(t, filepath.Join(dir, "tables", "app_logs.db"))
	assert.Equal(t, 4, stores.EmbeddingDim)
}
