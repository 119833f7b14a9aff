package linker

import "sort"

// mask is a bitmask over one side's txos, bit k set iff the k-th txo
// (after descending-value sort) belongs to the aggregate.
type mask uint32

// side bundles a sorted txo list with its aggregate value table, per
// spec.md §4.1 (Aggregate Enumerator, C1).
type side struct {
	txos []Txo
	// vals[a] = sum of values of member txos of aggregate a, for a in [0, 2^n).
	vals []int64
}

// prepareSide sorts txos by descending value (stable, spec.md §3) and
// tabulates the value of every one of the 2^n subset aggregates.
//
// V[a] = V[a ^ (a & -a)] + value[ctz(a & -a)], the standard subset-sum
// tabulation named in spec.md §4.1.
func prepareSide(txos []Txo) side {
	sorted := make([]Txo, len(txos))
	copy(sorted, txos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	n := len(sorted)
	vals := make([]int64, 1<<uint(n))
	for a := mask(1); int(a) < len(vals); a++ {
		lsb := a & (-a)
		bit := bits(lsb)
		vals[a] = vals[a^lsb] + sorted[bit].Value
	}

	return side{txos: sorted, vals: vals}
}

// bits returns the index of the single set bit in a power-of-two mask.
func bits(m mask) int {
	idx := 0
	for m > 1 {
		m >>= 1
		idx++
	}
	return idx
}

// fullMask is the aggregate containing every txo on the side, 2^n - 1.
func (s side) fullMask() mask {
	return mask(len(s.vals) - 1)
}

// memberVector returns the 0/1 indicator vector of aggregate a over the
// side's txos, used by the final matrix assembly (spec.md §4.5).
func (s side) memberVector(a mask) []bool {
	n := len(s.txos)
	v := make([]bool, n)
	for k := 0; k < n; k++ {
		if a&(1<<uint(k)) != 0 {
			v[k] = true
		}
	}
	return v
}
