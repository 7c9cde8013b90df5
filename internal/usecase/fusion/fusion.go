// Package fusion implements the hybrid scoring engine: weighted combination
// of heterogeneous relevance scores into one ranking.
package fusion

import (
	"sort"

	"github.com/meridian-cloud/contextd/internal/domain/scoring"
)

// Engine fuses per-source scored results into a single bounded ranking.
type Engine struct {
	windowSize int
}

// New creates a fusion engine truncating rankings to windowSize.
func New(windowSize int) *Engine {
	return &Engine{windowSize: windowSize}
}

// Fuse scales each result by its source weight, merges duplicates across
// lists by identity key (summing weighted scores, keeping the payload of the
// first occurrence), sorts descending by weighted score, and truncates to
// the window size. Input lists are not modified.
func (e *Engine) Fuse(weights scoring.Weights, lists ...[]scoring.Result) []scoring.Result {
	merged := make(map[string]*scoring.Result)
	order := make([]string, 0)

	for _, list := range lists {
		for i := range list {
			r := list[i]
			r.WeightedScore = r.RawScore * weights.Weight(r.Source)

			key := r.Key()
			if existing, ok := merged[key]; ok {
				existing.WeightedScore += r.WeightedScore
				continue
			}
			merged[key] = &r
			order = append(order, key)
		}
	}

	results := make([]scoring.Result, 0, len(merged))
	for _, key := range order {
		results = append(results, *merged[key])
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].WeightedScore > results[j].WeightedScore
	})

	if e.windowSize > 0 && len(results) > e.windowSize {
		results = results[:e.windowSize]
	}

	return results
}
