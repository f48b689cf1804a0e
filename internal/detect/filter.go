// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package detect

import (
	"regexp"
	"sort"

	"github.com/autoir-dev/autoir/internal/analyzer"
	"github.com/autoir-dev/autoir/internal/store"
)

// Filter is the cheap local predicate run before the analyzer.
type Filter struct {
	re         *regexp.Regexp
	maxSamples int
}

// FilterResult is what survives filtering for one window.
type FilterResult struct {
	// Matched holds every matching event in scan order.
	Matched    []*store.LogEvent
	Aggregates []analyzer.Aggregate
	// Samples holds at most maxSamples events per group, earliest first.
	Samples []analyzer.Sample
}

// NewFilter compiles pattern. maxSamples bounds samples per group.
func NewFilter(pattern string, maxSamples int) (*Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Filter{re: re, maxSamples: maxSamples}, nil
}

// Apply selects matching events. Aggregates are ordered by count
// descending, then group name.
func (f *Filter) Apply(events []*store.LogEvent) FilterResult {
	var res FilterResult
	counts := make(map[string]int)
	sampled := make(map[string]int)

	for _, e := range events {
		if !f.re.MatchString(e.Message) {
			continue
		}
		res.Matched = append(res.Matched, e)
		counts[e.Group]++
		if sampled[e.Group] < f.maxSamples {
			sampled[e.Group]++
			res.Samples = append(res.Samples, analyzer.Sample{
				EventID:     e.ID,
				TimestampMs: e.TimestampMs,
				Group:       e.Group,
				Stream:      e.Stream,
				Message:     e.Message,
			})
		}
	}

	for g, n := range counts {
		res.Aggregates = append(res.Aggregates, analyzer.Aggregate{Group: g, Count: n})
	}
	sort.Slice(res.Aggregates, func(i, j int) bool {
		a, b := res.Aggregates[i], res.Aggregates[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Group < b.Group
	})
	return res
}
