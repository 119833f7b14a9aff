package linker

import "sort"

// aggPair is one valid decomposition of a parent input aggregate into a
// bigger ("l") and smaller ("r") disjoint matched component, l ⊕ r = p,
// l & r = 0, l > r (spec.md §4.3, Aggregate Pair Index, C3).
type aggPair struct {
	l, r mask
}

// pairIndex maps a matched input aggregate p to every (l, r) decomposition
// reachable from it.
type pairIndex map[mask][]aggPair

// buildPairIndex constructs C3 exactly following the reference
// implementation's iteration order: outer loop over interior matched
// aggregates ascending, inner loop over disjoint smaller matched
// components ascending. For a fixed key p this yields entries ordered by
// l ascending (equivalently r descending) — the order the traversal engine
// (C5) depends on for its early-exit when scanning a frame's decomposition
// list (see DESIGN.md, Open Question on pair ordering).
func buildPairIndex(md matchData) pairIndex {
	if len(md.matchedIn) < 2 {
		return pairIndex{}
	}

	// Matched aggregates are closed under "includes 0 and the full mask"
	// (spec.md §3); matchedIn is sorted ascending, so those are exactly
	// the first and last elements.
	tgt := md.matchedIn[len(md.matchedIn)-1]
	interior := md.matchedIn[1 : len(md.matchedIn)-1]

	isInterior := make(map[mask]bool, len(interior))
	for _, m := range interior {
		isInterior[m] = true
	}

	idx := make(pairIndex)
	for _, i := range interior {
		jMax := i
		if tgt-i+1 < jMax {
			jMax = tgt - i + 1
		}
		for j := mask(0); j < jMax; j++ {
			if i&j != 0 {
				continue
			}
			if !isInterior[j] {
				continue
			}
			p := i + j
			idx[p] = append(idx[p], aggPair{l: i, r: j})
		}
	}
	return idx
}

// sortedInterior is exposed for tests asserting C3's ordering contract.
func sortedInterior(md matchData) []mask {
	out := append([]mask(nil), md.matchedIn...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
