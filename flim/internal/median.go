// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal holds small helpers shared by the flim packages that are
// not meaningful outside this module.
package internal

import "sort"

// MedianAccumulator collects uint64 samples and reports their median. The
// calibrator's sample windows are bounded to a few thousand observations
// (spec.md §9), so a sort-at-end implementation is sufficient; nothing in
// this module streams an unbounded number of samples through it.
type MedianAccumulator struct {
	samples []uint64
}

// Push records a new sample.
func (m *MedianAccumulator) Push(v uint64) {
	m.samples = append(m.samples, v)
}

// Len returns the number of samples pushed so far.
func (m *MedianAccumulator) Len() int {
	return len(m.samples)
}

// Median returns the median of all pushed samples, or 0 if none were
// pushed. It does not mutate future Push calls' ordering semantics, but it
// does sort its internal slice in place.
func (m *MedianAccumulator) Median() float64 {
	n := len(m.samples)
	if n == 0 {
		return 0
	}
	sort.Slice(m.samples, func(i, j int) bool { return m.samples[i] < m.samples[j] })
	mid := n / 2
	if n%2 == 1 {
		return float64(m.samples[mid])
	}
	return float64(m.samples[mid-1]+m.samples[mid]) / 2
}
