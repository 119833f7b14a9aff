package linker

import "sort"

// matchData holds the output of the Value Matcher (C2, spec.md §4.2).
type matchData struct {
	// matchedIn is M_in: the sorted set of input aggregates that match at
	// least one output aggregate under accept().
	matchedIn []mask
	// valOf maps a matched input aggregate to its value.
	valOf map[mask]int64
	// outsOfVal maps a matched value to every output aggregate of that value.
	outsOfVal map[int64][]mask
}

// accept implements the fee-policy window of spec.md §4.2.
func accept(d int64, fees int64, intra Intrafees) bool {
	if !intra.hasIntrafees() {
		return d >= 0 && d <= fees
	}
	return (d <= 0 && d >= -intra.Maker) || (d >= 0 && d <= fees+intra.Taker)
}

// matchAggregatesByValue builds M_in, val_of and outs_of_val (C2).
//
// Construction follows spec.md §4.2 exactly: iterate unique input-aggregate
// values ascending; for each, iterate unique output-aggregate values
// ascending; when !has_intrafees, once d = inVal - outVal < 0 further output
// values can only make d more negative (outputs are ascending), so iteration
// for this input value stops there.
func matchAggregatesByValue(in, out side, fees int64, intra Intrafees) matchData {
	inByVal := groupMasksByValue(in.vals)
	outByVal := groupMasksByValue(out.vals)

	inVals := sortedKeys(inByVal)
	outVals := sortedKeys(outByVal)

	md := matchData{
		valOf:     make(map[mask]int64),
		outsOfVal: make(map[int64][]mask),
	}
	matchedSet := make(map[mask]bool)

	for _, inVal := range inVals {
		for _, outVal := range outVals {
			d := inVal - outVal
			if !intra.hasIntrafees() && d < 0 {
				break
			}
			if !accept(d, fees, intra) {
				continue
			}

			for _, inAgg := range inByVal[inVal] {
				if !matchedSet[inAgg] {
					matchedSet[inAgg] = true
					md.matchedIn = append(md.matchedIn, inAgg)
					md.valOf[inAgg] = inVal
				}
			}
			md.outsOfVal[inVal] = append(md.outsOfVal[inVal], outByVal[outVal]...)
		}
	}

	sort.Slice(md.matchedIn, func(i, j int) bool { return md.matchedIn[i] < md.matchedIn[j] })
	for v := range md.outsOfVal {
		sort.Slice(md.outsOfVal[v], func(i, j int) bool { return md.outsOfVal[v][i] < md.outsOfVal[v][j] })
	}
	return md
}

// groupMasksByValue inverts an aggregate-value table into value -> masks.
func groupMasksByValue(vals []int64) map[int64][]mask {
	grouped := make(map[int64][]mask)
	for a, v := range vals {
		grouped[v] = append(grouped[v], mask(a))
	}
	return grouped
}

func sortedKeys(m map[int64][]mask) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
