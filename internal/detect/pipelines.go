// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

import (
	"context"
	"sync"
)

// Pipelines is the set of loops one process runs. Each loop is the sole
// writer of its own cursor.
type Pipelines []*Loop

// Statuses snapshots every loop, in configuration order.
func (p Pipelines) Statuses() []Status {
	out := make([]Status, 0, len(p))
	for _, l := range p {
		out = append(out, l.Status())
	}
	return out
}

// Run runs every loop until ctx is cancelled and returns the errors of
// loops that stopped fatally.
func (p Pipelines) Run(ctx context.Context) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, l := range p {
		wg.Go(func() {
			if err := l.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errs
}
