package linker

import (
	"fmt"
	"math/big"
)

// packSide identifies which list a pack record was pulled from.
type packSide int

const (
	packSideInputs packSide = iota
	packSideOutputs
)

// packRecord is one merged group of txos collapsed into a synthetic txo
// before enumeration (spec.md §3, §4.6). Records are appended in insertion
// order and consumed in reverse during unpacking.
type packRecord struct {
	id       string
	value    int64
	side     packSide
	original []Txo
}

// mergeSets computes the transitive closure of a list of id sets, merging
// any two sets that share an element. Grounded on boltzmann's
// utils/lists.merge_sets (original_source).
func mergeSets(sets []map[string]bool) []map[string]bool {
	remaining := make([]map[string]bool, len(sets))
	copy(remaining, sets)

	for {
		merged := false
		var result []map[string]bool
		for len(remaining) > 0 {
			current := remaining[0]
			rest := remaining[1:]
			remaining = nil
			for _, s := range rest {
				if disjoint(current, s) {
					remaining = append(remaining, s)
				} else {
					merged = true
					for k := range s {
						current[k] = true
					}
				}
			}
			result = append(result, current)
		}
		remaining = result
		if !merged {
			break
		}
	}
	return remaining
}

func disjoint(a, b map[string]bool) bool {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if large[k] {
			return false
		}
	}
	return true
}

// packLinkedTxos merges groups of txos known to share an owner into a
// single synthetic txo, per spec.md §4.6. It mutates txos by removing the
// merged members and appending one synthetic entry per group, and returns
// the updated list plus the pack records describing what was merged.
func packLinkedTxos(txos []Txo, linkedSets []map[string]bool, side packSide, counter *int) ([]Txo, []packRecord) {
	if len(linkedSets) == 0 {
		return txos, nil
	}

	groups := mergeSets(linkedSets)
	var records []packRecord

	for _, group := range groups {
		var members []Txo
		var total int64
		var kept []Txo
		for _, t := range txos {
			if group[t.ID] {
				members = append(members, t)
				total += t.Value
			} else {
				kept = append(kept, t)
			}
		}

		// Only groups with more than one member on this side are actually
		// packed (spec.md §4.6): a singleton "group" would just rename a
		// txo with no effect on the final, unpacked matrix.
		if len(members) <= 1 {
			continue
		}

		*counter++
		prefix := packInputPrefix
		if side == packSideOutputs {
			prefix = packOutputPrefix
		}
		syntheticID := fmt.Sprintf("%s%d", prefix, *counter)

		kept = append(kept, Txo{ID: syntheticID, Value: total})
		txos = kept

		records = append(records, packRecord{
			id:       syntheticID,
			value:    total,
			side:     side,
			original: members,
		})
	}

	return txos, records
}

// unpackMatrix reverses pack records (most recent first), re-expanding the
// synthetic txo's row/column into |group| identical copies and splicing the
// original txos back into the side lists (spec.md §4.6).
func unpackMatrix(links Matrix, inputs, outputs []Txo, records []packRecord) (Matrix, []Txo, []Txo) {
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		switch rec.side {
		case packSideInputs:
			idx := indexOf(inputs, rec.id)
			if idx < 0 {
				continue
			}
			if links != nil {
				links = expandColumns(links, idx, len(rec.original))
			}
			inputs = spliceTxos(inputs, idx, rec.original)
		case packSideOutputs:
			idx := indexOf(outputs, rec.id)
			if idx < 0 {
				continue
			}
			if links != nil {
				links = expandRows(links, idx, len(rec.original))
			}
			outputs = spliceTxos(outputs, idx, rec.original)
		}
	}
	return links, inputs, outputs
}

func indexOf(txos []Txo, id string) int {
	for i, t := range txos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func spliceTxos(txos []Txo, idx int, group []Txo) []Txo {
	out := make([]Txo, 0, len(txos)-1+len(group))
	out = append(out, txos[:idx]...)
	out = append(out, group...)
	out = append(out, txos[idx+1:]...)
	return out
}

// expandColumns duplicates column idx of links into n identical columns.
func expandColumns(links Matrix, idx, n int) Matrix {
	out := make(Matrix, len(links))
	for r, row := range links {
		expanded := make([]*big.Int, 0, len(row)-1+n)
		expanded = append(expanded, row[:idx]...)
		for k := 0; k < n; k++ {
			expanded = append(expanded, cloneBig(row[idx]))
		}
		expanded = append(expanded, row[idx+1:]...)
		out[r] = expanded
	}
	return out
}

// expandRows duplicates row idx of links into n identical rows.
func expandRows(links Matrix, idx, n int) Matrix {
	out := make(Matrix, 0, len(links)-1+n)
	out = append(out, links[:idx]...)
	for k := 0; k < n; k++ {
		row := links[idx]
		cp := make([]*big.Int, len(row))
		for i, v := range row {
			cp[i] = cloneBig(v)
		}
		out = append(out, cp)
	}
	out = append(out, links[idx+1:]...)
	return out
}

func cloneBig(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}
