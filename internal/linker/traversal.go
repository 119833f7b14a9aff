package linker

import (
	"math/big"
	"time"
)

// countPair is the (nb_parents, nb_children) bookkeeping attached to one
// output-left-piece inside a traversal frame's d_out (spec.md §4.5).
type countPair struct {
	parents  *big.Int
	children *big.Int
}

// outMap is d_out: output-right-remainder → { output-left-piece → counts }.
type outMap map[mask]map[mask]*countPair

// frame is one level of the explicit depth-first stack (spec.md §4.5,
// "State of a traversal frame").
type frame struct {
	cursor int
	il     mask
	ir     mask
	dOut   outMap
}

// dKey identifies one entry of the sparse link accumulator D.
type dKey struct {
	in, out mask
}

// budgetExceeded names the wall-clock budget being exceeded mid-traversal.
// A timeout is not a Go error returned to the caller (spec.md §7 treats timeout
// as normal control flow, not an exception); traverse reports it through its
// ok result, and this type is not referenced elsewhere.
type budgetExceeded struct{}

// traverse runs the Combinatorial Traversal Engine (C5). It returns the
// total combination count and the sparse link accumulator D, or ok=false
// if the wall-clock budget was exceeded.
func traverse(md matchData, idx pairIndex, itgt, otgt mask, maxDuration time.Duration) (nbCmbn *big.Int, d map[dKey]*big.Int, ok bool) {
	start := time.Now()
	d = make(map[dKey]*big.Int)

	rootDOut := outMap{otgt: {0: {parents: big.NewInt(1), children: big.NewInt(0)}}}
	stack := []*frame{{cursor: 0, il: 0, ir: itgt, dOut: rootDOut}}

	for len(stack) > 0 {
		if time.Since(start) >= maxDuration {
			return big.NewInt(0), nil, false
		}

		top := stack[len(stack)-1]
		ircs := idx[top.ir]

		if top.cursor < len(ircs) && ircs[top.cursor].r > top.il {
			pair := ircs[top.cursor]
			nIl, nIr := pair.r, pair.l
			nDOut := buildChildDOut(top.dOut, nIl, nIr, otgt, md)
			top.cursor++
			stack = append(stack, &frame{cursor: 0, il: nIl, ir: nIr, dOut: nDOut})
			continue
		}

		// Frame exhausted: pop and back-propagate into the parent (or
		// finish, if this was the root).
		popped := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(stack) == 0 {
			nbCmbn = popped.dOut[otgt][0].children
			break
		}

		parent := stack[len(stack)-1]
		for oR, leftMap := range popped.dOut {
			for oL, cp := range leftMap {
				nbOccur := new(big.Int).Add(cp.children, big.NewInt(1))

				addLink(d, dKey{popped.ir, oR}, cp.parents)
				addLink(d, dKey{popped.il, oL}, new(big.Int).Mul(cp.parents, nbOccur))

				pOr := oL | oR
				if parentLeft, present := parent.dOut[pOr]; present {
					for _, pcp := range parentLeft {
						pcp.children.Add(pcp.children, nbOccur)
					}
				}
			}
		}
	}

	if nbCmbn == nil {
		nbCmbn = big.NewInt(0)
	}
	return nbCmbn, d, true
}

// buildChildDOut computes n_d_out for the frame about to be pushed, per the
// per-frame step described in spec.md §4.5.
func buildChildDOut(parentDOut outMap, nIl, nIr, otgt mask, md matchData) outMap {
	nDOut := make(outMap)
	valIl := md.valOf[nIl]
	valIr := md.valOf[nIr]
	outsForIl := md.outsOfVal[valIl]
	outsForIr := md.outsOfVal[valIr]
	irSet := make(map[mask]bool, len(outsForIr))
	for _, m := range outsForIr {
		irSet[m] = true
	}

	for oR, leftMap := range parentDOut {
		sol := otgt &^ oR
		nbPrt := big.NewInt(0)
		for _, cp := range leftMap {
			nbPrt.Add(nbPrt, cp.parents)
		}

		for _, nOl := range outsForIl {
			if sol&nOl != 0 {
				continue
			}
			nSol := sol | nOl
			nOr := otgt &^ nSol
			if nSol&nOr != 0 {
				continue
			}
			if !irSet[nOr] {
				continue
			}
			if nDOut[nOr] == nil {
				nDOut[nOr] = make(map[mask]*countPair)
			}
			nDOut[nOr][nOl] = &countPair{parents: new(big.Int).Set(nbPrt), children: big.NewInt(0)}
		}
	}
	return nDOut
}

func addLink(d map[dKey]*big.Int, k dKey, amount *big.Int) {
	if existing, ok := d[k]; ok {
		existing.Add(existing, amount)
		return
	}
	d[k] = new(big.Int).Set(amount)
}

// assembleMatrix builds the final per-txo linkability matrix from D,
// adding the trivial (full, full) pairing (spec.md §4.5, "Final matrix
// assembly").
func assembleMatrix(in, out side, d map[dKey]*big.Int, nbCmbn *big.Int) Matrix {
	nOut := len(out.txos)
	nIn := len(in.txos)

	links := make(Matrix, nOut)
	for o := range links {
		links[o] = make([]*big.Int, nIn)
		for i := range links[o] {
			links[o][i] = big.NewInt(0)
		}
	}

	itgt := in.fullMask()
	otgt := out.fullMask()
	addOuter(links, in, out, itgt, otgt, big.NewInt(1))
	nbCmbn.Add(nbCmbn, big.NewInt(1))

	for k, mult := range d {
		addOuter(links, in, out, k.in, k.out, mult)
	}

	return links
}

// addOuter adds mult * outer(mask_out[outAgg], mask_in[inAgg]) to links.
func addOuter(links Matrix, in, out side, inAgg, outAgg mask, mult *big.Int) {
	inVec := in.memberVector(inAgg)
	outVec := out.memberVector(outAgg)
	for o, inOut := range outVec {
		if !inOut {
			continue
		}
		row := links[o]
		for i, inIn := range inVec {
			if !inIn {
				continue
			}
			row[i].Add(row[i], mult)
		}
	}
}
