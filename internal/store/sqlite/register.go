// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/autoir-dev/autoir/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newStores)
}

// newStores lays out the backend under dataDir:
//
//	tables/<table>.db   one database per logical event table
//	cursors.db
//	incidents.db
func newStores(dataDir string, embeddingDim int) (*store.Stores, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Track opened stores for cleanup on partial failure.
	var closers []interface{ Close() error }
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	vs, err := NewVectorStore(filepath.Join(dataDir, "tables"))
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	closers = append(closers, vs)

	cs, err := NewCursorStore(filepath.Join(dataDir, "cursors.db"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating cursor store: %w", err)
	}
	closers = append(closers, cs)

	is, err := NewIncidentStore(filepath.Join(dataDir, "incidents.db"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating incident store: %w", err)
	}

	return &store.Stores{
		Vectors:      vs,
		Cursors:      cs,
		Incidents:    is,
		EmbeddingDim: embeddingDim,
	}, nil
}
