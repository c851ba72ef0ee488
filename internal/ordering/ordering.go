// Package ordering computes fractional sort keys for chapter insertion.
//
// Keys are plain float64 values with a fixed gap between appended chapters, so
// a chapter can be inserted at any position in O(1) without renumbering
// existing rows. Repeated insertion into the same gap halves the available
// precision each time; after roughly 50 midpoint insertions the keys become
// indistinguishable within float64 epsilon. That bound is accepted here: there
// is deliberately no renumbering or compaction pass.
package ordering

import (
	"sort"

	"github.com/talemachine/talemachine/internal/errors"
)

// Gap is the spacing between consecutive appended chapters.
const Gap = 10000.0

// AppendKey returns the key for a chapter placed after all existing ones.
// An empty story starts at Gap.
func AppendKey(keys []float64) float64 {
	if len(keys) == 0 {
		return Gap
	}
	return maxKey(keys) + Gap
}

// PrependKey returns the key for a chapter placed before all existing ones.
// An empty story starts at Gap.
func PrependKey(keys []float64) float64 {
	if len(keys) == 0 {
		return Gap
	}
	return minKey(keys) / 2
}

// BetweenKey returns the key for a chapter placed immediately after anchorKey.
// If a chapter follows the anchor the midpoint is used; otherwise the anchor
// is last and the key is anchorKey + Gap. The anchor must be present in keys.
func BetweenKey(anchorKey float64, keys []float64) (float64, error) {
	found := false
	for _, k := range keys {
		if k == anchorKey {
			found = true
			break
		}
	}
	if !found {
		return 0, errors.Wrap(errors.ErrOrdering, "anchor key not among existing keys")
	}

	next, ok := nextAfter(anchorKey, keys)
	if !ok {
		return anchorKey + Gap, nil
	}
	return (anchorKey + next) / 2, nil
}

// nextAfter finds the smallest key strictly greater than k.
func nextAfter(k float64, keys []float64) (float64, bool) {
	sorted := make([]float64, len(keys))
	copy(sorted, keys)
	sort.Float64s(sorted)

	i := sort.SearchFloat64s(sorted, k)
	for i < len(sorted) && sorted[i] <= k {
		i++
	}
	if i == len(sorted) {
		return 0, false
	}
	return sorted[i], true
}

func maxKey(keys []float64) float64 {
	m := keys[0]
	for _, k := range keys[1:] {
		if k > m {
			m = k
		}
	}
	return m
}

func minKey(keys []float64) float64 {
	m := keys[0]
	for _, k := range keys[1:] {
		if k < m {
			m = k
		}
	}
	return m
}
