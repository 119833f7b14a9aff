package linker

import (
	"math/big"
	"testing"
	"time"
)

func txo(id string, v int64) Txo { return Txo{ID: id, Value: v} }

func defaultOptions() Options {
	return Options{Precheck: true, Linkability: true}
}

func runScenario(t *testing.T, ins, outs []Txo, fees int64) (Matrix, *big.Int, []Txo, []Txo) {
	t.Helper()
	links, nbCmbn, ri, ro, err := Process(ins, outs, fees, nil, defaultOptions(), Intrafees{}, 600*time.Second, MaxTxos)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return links, nbCmbn, ri, ro
}

// Scenarios A-D, P2, P3 from spec.md §8.
func TestScenarioNbCmbn(t *testing.T) {
	cases := []struct {
		name    string
		ins     []Txo
		outs    []Txo
		nbCmbn  int64
	}{
		{"A", []Txo{txo("a", 10), txo("b", 10)}, []Txo{txo("A", 8), txo("B", 2), txo("C", 3), txo("D", 7)}, 3},
		{"B", []Txo{txo("a", 10), txo("b", 10)}, []Txo{txo("A", 8), txo("B", 2), txo("C", 2), txo("D", 8)}, 5},
		{"C", []Txo{txo("a", 10), txo("b", 10)}, []Txo{txo("A", 5), txo("B", 5), txo("C", 5), txo("D", 5)}, 7},
		{"D", []Txo{txo("a", 10), txo("b", 10), txo("c", 2)}, []Txo{txo("A", 8), txo("B", 2), txo("C", 2), txo("D", 8), txo("E", 2)}, 13},
		{"P2", []Txo{txo("a", 5), txo("b", 5)}, []Txo{txo("A", 5), txo("B", 5)}, 3},
		{"P3", []Txo{txo("a", 5), txo("b", 5), txo("c", 5)}, []Txo{txo("A", 5), txo("B", 5), txo("C", 5)}, 16},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, nbCmbn, _, _ := runScenario(t, c.ins, c.outs, 0)
			want := big.NewInt(c.nbCmbn)
			if nbCmbn.Cmp(want) != 0 {
				t.Fatalf("nb_cmbn = %s, want %s", nbCmbn, want)
			}
		})
	}
}

// Scenario A's cell probability: L[A][a] / nb_cmbn == 2/3 (spec.md §8).
func TestScenarioACellProbability(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("b", 10)}
	outs := []Txo{txo("A", 8), txo("B", 2), txo("C", 3), txo("D", 7)}
	links, nbCmbn, ri, ro := runScenario(t, ins, outs, 0)

	oIdx, iIdx := -1, -1
	for i, o := range ro {
		if o.ID == "A" {
			oIdx = i
		}
	}
	for i, in := range ri {
		if in.ID == "a" {
			iIdx = i
		}
	}
	if oIdx < 0 || iIdx < 0 {
		t.Fatalf("couldn't locate output A / input a in result lists")
	}

	cell := links[oIdx][iIdx]
	num := new(big.Int).Mul(cell, big.NewInt(3))
	den := new(big.Int).Mul(nbCmbn, big.NewInt(2))
	if num.Cmp(den) != 0 {
		t.Fatalf("L[A][a]/nb_cmbn = %s/%s, want 2/3", cell, nbCmbn)
	}
}

// For scenarios A, B, C, supplying {a,b} as a linked set with a merged
// output should collapse the transaction to nb_cmbn = 1 (spec.md §8).
func TestLinkedSetCollapsesToOne(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("b", 10)}
	outs := []Txo{txo("A", 20)}
	linkedSets := []map[string]bool{{"a": true, "b": true}}

	opts := Options{Precheck: true, Linkability: true, MergeInputs: true}
	links, nbCmbn, _, _, err := Process(ins, outs, 0, linkedSets, opts, Intrafees{}, 600*time.Second, MaxTxos)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if nbCmbn.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("nb_cmbn = %s, want 1", nbCmbn)
	}
	for _, row := range links {
		for _, cell := range row {
			if cell.Cmp(big.NewInt(1)) != 0 {
				t.Fatalf("expected all-ones matrix, got %v", links)
			}
		}
	}
}

// Determinism: repeated calls on identical inputs yield bit-identical
// outputs (spec.md §8 property 4).
func TestDeterminism(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("b", 10), txo("c", 2)}
	outs := []Txo{txo("A", 8), txo("B", 2), txo("C", 2), txo("D", 8), txo("E", 2)}

	l1, n1, _, _ := runScenario(t, ins, outs, 0)
	l2, n2, _, _ := runScenario(t, ins, outs, 0)

	if n1.Cmp(n2) != 0 {
		t.Fatalf("nb_cmbn differs across runs: %s vs %s", n1, n2)
	}
	for o := range l1 {
		for i := range l1[o] {
			if l1[o][i].Cmp(l2[o][i]) != 0 {
				t.Fatalf("links differ at [%d][%d]: %s vs %s", o, i, l1[o][i], l2[o][i])
			}
		}
	}
}

// Matrix bound: every cell is within [0, nb_cmbn] (spec.md §8 property 2).
func TestMatrixBound(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("b", 10), txo("c", 2)}
	outs := []Txo{txo("A", 8), txo("B", 2), txo("C", 2), txo("D", 8), txo("E", 2)}
	links, nbCmbn, _, _ := runScenario(t, ins, outs, 0)

	for o := range links {
		for i := range links[o] {
			cell := links[o][i]
			if cell.Sign() < 0 || cell.Cmp(nbCmbn) > 0 {
				t.Fatalf("cell [%d][%d] = %s out of bounds [0, %s]", o, i, cell, nbCmbn)
			}
		}
	}
}

// Column conservation: with no packing, every input's column sum across
// outputs is the same. Here the trivial interpretation links each input to
// all 4 outputs and each of the 6 two-output splits links it to 2, so every
// column sums to 4 + 6*2 = 16 (while nb_cmbn is 7).
func TestColumnSumsConserved(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("b", 10)}
	outs := []Txo{txo("A", 5), txo("B", 5), txo("C", 5), txo("D", 5)}
	links, _, _, _ := runScenario(t, ins, outs, 0)

	want := big.NewInt(16)
	for i := range ins {
		sum := big.NewInt(0)
		for o := range links {
			sum.Add(sum, links[o][i])
		}
		if sum.Cmp(want) != 0 {
			t.Fatalf("column %d sums to %s, want %s", i, sum, want)
		}
	}
}

func TestPrecheckColumnsEqualInvariant(t *testing.T) {
	cases := []struct {
		name string
		ins  []Txo
		outs []Txo
	}{
		{"A", []Txo{txo("a", 10), txo("b", 10)}, []Txo{txo("A", 8), txo("B", 2), txo("C", 3), txo("D", 7)}},
		{"D", []Txo{txo("a", 10), txo("b", 10), txo("c", 2)}, []Txo{txo("A", 8), txo("B", 2), txo("C", 2), txo("D", 8), txo("E", 2)}},
		{"P3", []Txo{txo("a", 5), txo("b", 5), txo("c", 5)}, []Txo{txo("A", 5), txo("B", 5), txo("C", 5)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inSide := prepareSide(c.ins)
			outSide := prepareSide(c.outs)
			md := matchAggregatesByValue(inSide, outSide, 0, Intrafees{})
			if !columnsEqual(inSide, outSide, md) {
				t.Fatalf("precheck column-0 shortcut invariant violated for scenario %s", c.name)
			}
		})
	}
}

func TestValidationRejectsDuplicateID(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("a", 5)}
	outs := []Txo{txo("A", 15)}
	_, _, _, _, err := Process(ins, outs, 0, nil, defaultOptions(), Intrafees{}, time.Second, MaxTxos)
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestValidationRejectsReservedID(t *testing.T) {
	ins := []Txo{txo("PACK_I1", 10)}
	outs := []Txo{txo("A", 10)}
	_, _, _, _, err := Process(ins, outs, 0, nil, defaultOptions(), Intrafees{}, time.Second, MaxTxos)
	if err == nil {
		t.Fatal("expected error for reserved id prefix")
	}
}

func TestSizeExceededReturnsZero(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("b", 10)}
	outs := []Txo{txo("A", 10), txo("B", 10)}
	_, nbCmbn, _, _, err := Process(ins, outs, 0, nil, defaultOptions(), Intrafees{}, time.Second, 1)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if nbCmbn.Sign() != 0 {
		t.Fatalf("expected nb_cmbn = 0 when size exceeded, got %s", nbCmbn)
	}
}

func TestZeroValueTxosFiltered(t *testing.T) {
	ins := []Txo{txo("a", 10), txo("z", 0)}
	outs := []Txo{txo("A", 10)}
	_, nbCmbn, ri, _, err := Process(ins, outs, 0, nil, defaultOptions(), Intrafees{}, time.Second, MaxTxos)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(ri) != 1 || ri[0].ID != "a" {
		t.Fatalf("expected zero-value txo filtered out, got %v", ri)
	}
	if nbCmbn.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("nb_cmbn = %s, want 1", nbCmbn)
	}
}
