package linker

import (
	"fmt"
	"math/big"
	"time"
)

// Process is the engine's single public operation (spec.md §6, §4.7): the
// Orchestrator (C7). It sequences pack -> prepare -> match -> precheck ->
// traverse -> unpack, applies the size and time limits, and handles
// degenerate shapes.
func Process(
	inputs, outputs []Txo,
	fees int64,
	linkedSets []map[string]bool,
	options Options,
	intrafees Intrafees,
	maxDuration time.Duration,
	maxTxos int,
) (Matrix, *big.Int, []Txo, []Txo, error) {
	ins, outs, err := copyAndValidate(inputs, outputs, fees, linkedSets, intrafees)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	hasIntrafees := intrafees.hasIntrafees()
	packCounter := 0
	var records []packRecord

	// Step 2: pack externally-supplied linked sets, routed to whichever
	// side their ids actually belong to.
	if len(linkedSets) > 0 {
		inGroups, outGroups, err := splitLinkedSetsBySide(ins, outs, linkedSets, options)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if len(inGroups) > 0 {
			var recs []packRecord
			ins, recs = packLinkedTxos(ins, inGroups, packSideInputs, &packCounter)
			records = append(records, recs...)
		}
		if len(outGroups) > 0 {
			var recs []packRecord
			outs, recs = packLinkedTxos(outs, outGroups, packSideOutputs, &packCounter)
			records = append(records, recs...)
		}
	}

	// Step 3: fold fees into a synthetic output.
	effectiveFees := fees
	if options.MergeFees && fees > 0 {
		outs = append(outs, Txo{ID: FeesID, Value: fees})
		effectiveFees = 0
	}

	var links Matrix
	nbCmbn := big.NewInt(0)

	// Step 4: deterministic-link precheck. Its matrix is sized against the
	// pre-traversal ins/outs and is used as-is only if the traversal below
	// never runs; the det-link id sets it finds are packed lazily, inside
	// the traversal branch, so that matrix and pack records stay in sync
	// (mirrors the reference implementation's placement of its pack call
	// strictly inside the LINKABILITY branch — see DESIGN.md).
	var pendingInGroups, pendingOutGroups []map[string]bool
	if options.Precheck && withinLimit(ins, outs, maxTxos) && !hasIntrafees {
		inSide := prepareSide(ins)
		outSide := prepareSide(outs)
		md := matchAggregatesByValue(inSide, outSide, effectiveFees, intrafees)
		detLinks := checkDeterministicLinks(inSide, outSide, md)

		if len(detLinks) > 0 {
			links = allOnesAt(len(outs), len(ins), detLinks)
			pendingInGroups, pendingOutGroups = groupDeterministicLinks(detLinks)
		}
	}

	// Step 5: degenerate shape, everything collapsed by packing.
	if len(ins) == 0 || len(outs) == 0 {
		nbCmbn = big.NewInt(1)
		links = allOnes(len(outs), len(ins))
	} else if options.Linkability && withinLimit(ins, outs, maxTxos) {
		// Pack the deterministic-link groups found above, then rebuild the
		// matching/pair-index data against the now-smaller sides.
		if len(pendingInGroups) > 0 {
			var recs []packRecord
			ins, recs = packLinkedTxos(ins, pendingInGroups, packSideInputs, &packCounter)
			records = append(records, recs...)
		}
		if len(pendingOutGroups) > 0 {
			var recs []packRecord
			outs, recs = packLinkedTxos(outs, pendingOutGroups, packSideOutputs, &packCounter)
			records = append(records, recs...)
		}

		// Step 6: full traversal.
		inSide := prepareSide(ins)
		outSide := prepareSide(outs)
		md := matchAggregatesByValue(inSide, outSide, effectiveFees, intrafees)
		idx := buildPairIndex(md)

		itgt := inSide.fullMask()
		otgt := outSide.fullMask()
		total, d, ok := traverse(md, idx, itgt, otgt, maxDuration)
		if !ok {
			return nil, big.NewInt(0), ins, outs, nil
		}
		links = assembleMatrix(inSide, outSide, d, total)
		nbCmbn = total
	}

	// Step 7: unpack.
	links, ins, outs = unpackMatrix(links, ins, outs, records)
	return links, nbCmbn, ins, outs, nil
}

// withinLimit reports whether max(|ins|, |outs|) is within the max-txos
// budget (spec.md §3, §7 SizeExceeded).
func withinLimit(ins, outs []Txo, maxTxos int) bool {
	n := len(ins)
	if len(outs) > n {
		n = len(outs)
	}
	return n <= maxTxos
}

// allOnes builds an (nOut x nIn) matrix of 1s, the trivial matrix for a
// degenerate (empty-side) shape (spec.md §4.7 step 5).
func allOnes(nOut, nIn int) Matrix {
	m := make(Matrix, nOut)
	for o := range m {
		m[o] = make([]*big.Int, nIn)
		for i := range m[o] {
			m[o][i] = big.NewInt(1)
		}
	}
	return m
}

// allOnesAt builds a zero matrix with 1s at the given deterministic-link
// coordinates (spec.md §4.4, precheck's initial matrix).
func allOnesAt(nOut, nIn int, links []detLink) Matrix {
	m := make(Matrix, nOut)
	for o := range m {
		m[o] = make([]*big.Int, nIn)
		for i := range m[o] {
			m[o][i] = big.NewInt(0)
		}
	}
	for _, l := range links {
		m[l.outIdx][l.inIdx] = big.NewInt(1)
	}
	return m
}

// groupDeterministicLinks turns the prechecker's (output, input) id pairs
// into packable groups on each side: inputs sharing a deterministic link to
// the same output are grouped together, and symmetrically for outputs
// sharing a link to the same input (spec.md §4.4's "their id sets are fed
// back into the packing layer"; output-side support per DESIGN.md's
// decision on spec.md §9 Q2).
func groupDeterministicLinks(links []detLink) (inGroups, outGroups []map[string]bool) {
	byOut := make(map[string]map[string]bool)
	byIn := make(map[string]map[string]bool)
	var outOrder, inOrder []string

	for _, l := range links {
		if byOut[l.outID] == nil {
			byOut[l.outID] = make(map[string]bool)
			outOrder = append(outOrder, l.outID)
		}
		byOut[l.outID][l.inID] = true

		if byIn[l.inID] == nil {
			byIn[l.inID] = make(map[string]bool)
			inOrder = append(inOrder, l.inID)
		}
		byIn[l.inID][l.outID] = true
	}

	for _, k := range outOrder {
		inGroups = append(inGroups, byOut[k])
	}
	for _, k := range inOrder {
		outGroups = append(outGroups, byIn[k])
	}
	return inGroups, outGroups
}

// splitLinkedSetsBySide classifies each caller-supplied linked set as
// belonging to the input side or the output side by id membership, per
// SPEC_FULL.md's symmetric MERGE_INPUTS/MERGE_OUTPUTS handling. A set whose
// ids straddle both sides, or match neither, is an InvalidInput error.
func splitLinkedSetsBySide(ins, outs []Txo, linkedSets []map[string]bool, options Options) (inGroups, outGroups []map[string]bool, err error) {
	inIDs := idSet(ins)
	outIDs := idSet(outs)

	for _, set := range linkedSets {
		onIn, onOut := false, false
		for id := range set {
			if inIDs[id] {
				onIn = true
			} else if outIDs[id] {
				onOut = true
			} else {
				return nil, nil, fmt.Errorf("%w: %q", ErrUnknownLinkedID, id)
			}
		}
		switch {
		case onIn && onOut:
			return nil, nil, fmt.Errorf("%w: linked set spans both inputs and outputs", ErrUnknownLinkedID)
		case onIn:
			if options.MergeInputs {
				inGroups = append(inGroups, set)
			}
		case onOut:
			if options.MergeOutputs {
				outGroups = append(outGroups, set)
			}
		}
	}
	return inGroups, outGroups, nil
}

func idSet(txos []Txo) map[string]bool {
	s := make(map[string]bool, len(txos))
	for _, t := range txos {
		s[t.ID] = true
	}
	return s
}
