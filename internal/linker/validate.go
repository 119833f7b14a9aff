package linker

import (
	"fmt"
	"strings"
)

// copyAndValidate implements spec.md §3's "zero-value txos are filtered out
// before processing" and §7's InvalidInput checks: duplicate ids on a side,
// negative values, negative fees, negative intrafees, and reserved id
// prefixes. It never mutates the caller's slices.
func copyAndValidate(inputs, outputs []Txo, fees int64, linkedSets []map[string]bool, intrafees Intrafees) ([]Txo, []Txo, error) {
	if fees < 0 {
		return nil, nil, ErrNegativeFees
	}
	if intrafees.Maker < 0 || intrafees.Taker < 0 {
		return nil, nil, ErrNegativeIntrafee
	}

	ins, err := filterAndValidateSide(inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("inputs: %w", err)
	}
	outs, err := filterAndValidateSide(outputs)
	if err != nil {
		return nil, nil, fmt.Errorf("outputs: %w", err)
	}

	inIDs := idSet(ins)
	outIDs := idSet(outs)
	for _, set := range linkedSets {
		for id := range set {
			if !inIDs[id] && !outIDs[id] {
				return nil, nil, fmt.Errorf("%w: %q", ErrUnknownLinkedID, id)
			}
		}
	}

	return ins, outs, nil
}

func filterAndValidateSide(txos []Txo) ([]Txo, error) {
	seen := make(map[string]bool, len(txos))
	var out []Txo
	for _, t := range txos {
		if t.Value == 0 {
			continue
		}
		if t.Value < 0 {
			return nil, fmt.Errorf("%w: txo %q", ErrNegativeValue, t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, t.ID)
		}
		if isReservedID(t.ID) {
			return nil, fmt.Errorf("%w: %q", ErrReservedID, t.ID)
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out, nil
}

func isReservedID(id string) bool {
	return id == FeesID || strings.HasPrefix(id, "PACK_")
}
