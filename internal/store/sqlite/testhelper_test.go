// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/autoir-dev/autoir/internal/store"
	"github.com/stretchr/testify/require"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "autoir-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

func event(i int, ts int64, embedding ...float32) *store.LogEvent {
	return &store.LogEvent{
		ID:          fmt.Sprintf("evt-%03d", i),
		Group:       "/aws/lambda/api",
		Stream:      "stream-1",
		TimestampMs: ts,
		Message:     fmt.Sprintf("message %d", i),
		Embedding:   embedding,
	}
}
