// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package store

import (
	"errors"
	"sync"

	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// DefaultEmbeddingDim is the default embedding dimension (all-MiniLM-L6-v2).
const DefaultEmbeddingDim = 384

// StoreFactory opens all stores of a backend rooted at dataDir.
type StoreFactory func(dataDir string, embeddingDim int) (*Stores, error)

var (
	factories   = map[string]StoreFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory StoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Stores is the explicitly constructed handle to the three stores. It is
// created at process start, threaded through the dispatcher, and closed at
// shutdown.
type Stores struct {
	Vectors      VectorStore
	Cursors      CursorStore
	Incidents    IncidentStore
	EmbeddingDim int
}

// Open creates all stores for the configured backend under dataDir.
func Open(cfg *StorageConfig, dataDir string) (*Stores, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, autoirerr.Errorf(autoirerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	dim := DefaultEmbeddingDim
	if cfg.EmbeddingDim > 0 {
		dim = cfg.EmbeddingDim
	}

	return factory(dataDir, dim)
}

// Close closes every store, collecting all errors.
func (s *Stores) Close() error {
	var errs []error
	if s.Vectors != nil {
		if err := s.Vectors.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Cursors != nil {
		if err := s.Cursors.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Incidents != nil {
		if err := s.Incidents.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
