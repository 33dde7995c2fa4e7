package repository

import "sort"

// normalizeReorders turns arbitrary requested priorities into a dense
// 1-based sequence. Requests are ranked by their requested priority (input
// order breaks ties) and reassigned positions 1..n, so the stored sequence
// is always contiguous regardless of what the caller sent.
func normalizeReorders(reorders []ReorderRequest) []ReorderRequest {
	normalized := make([]ReorderRequest, len(reorders))
	copy(normalized, reorders)

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Priority < normalized[j].Priority
	})
	for i := range normalized {
		normalized[i].Priority = i + 1
	}
	return normalized
}
