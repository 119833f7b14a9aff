package linker

import (
	"math/big"
	"testing"
)

func TestMergeSetsTransitiveClosure(t *testing.T) {
	sets := []map[string]bool{
		{"a": true, "b": true},
		{"b": true, "c": true},
		{"x": true},
	}
	merged := mergeSets(sets)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged groups, got %d: %v", len(merged), merged)
	}
	var sawABC, sawX bool
	for _, g := range merged {
		switch len(g) {
		case 3:
			if g["a"] && g["b"] && g["c"] {
				sawABC = true
			}
		case 1:
			if g["x"] {
				sawX = true
			}
		}
	}
	if !sawABC || !sawX {
		t.Fatalf("unexpected merge result: %v", merged)
	}
}

func TestPackLinkedTxosSkipsSingletons(t *testing.T) {
	txos := []Txo{txo("a", 10), txo("b", 5)}
	counter := 0
	out, records := packLinkedTxos(txos, []map[string]bool{{"a": true}}, packSideInputs, &counter)
	if len(records) != 0 {
		t.Fatalf("expected no pack record for a singleton group, got %v", records)
	}
	if len(out) != 2 {
		t.Fatalf("expected txos unchanged, got %v", out)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	txos := []Txo{txo("a", 10), txo("b", 5), txo("c", 2)}
	counter := 0
	packed, records := packLinkedTxos(txos, []map[string]bool{{"a": true, "b": true}}, packSideInputs, &counter)
	if len(packed) != 2 {
		t.Fatalf("expected 2 txos after packing, got %v", packed)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 pack record, got %d", len(records))
	}

	syntheticIdx := indexOf(packed, records[0].id)
	if syntheticIdx < 0 {
		t.Fatalf("synthetic id %q not found in %v", records[0].id, packed)
	}
	if packed[syntheticIdx].Value != 15 {
		t.Fatalf("synthetic value = %d, want 15", packed[syntheticIdx].Value)
	}

	// Two outputs, two post-pack inputs (the synthetic txo plus "c").
	links := make(Matrix, 2)
	for o := range links {
		links[o] = make([]*big.Int, 2)
		for i := range links[o] {
			links[o][i] = big.NewInt(int64(o*2 + i + 1))
		}
	}

	unpackedLinks, unpackedIns, _ := unpackMatrix(links, packed, nil, records)
	if len(unpackedIns) != 3 {
		t.Fatalf("expected 3 inputs after unpack, got %v", unpackedIns)
	}
	for _, row := range unpackedLinks {
		if len(row) != 3 {
			t.Fatalf("expected 3 columns per row after unpack, got %v", row)
		}
	}

	// The two columns carved out of the synthetic's original column must
	// carry its value, wherever the unpacker placed them.
	aIdx := indexOf(unpackedIns, "a")
	bIdx := indexOf(unpackedIns, "b")
	if aIdx < 0 || bIdx < 0 {
		t.Fatalf("expected a and b spliced back in, got %v", unpackedIns)
	}
	for o := range unpackedLinks {
		if unpackedLinks[o][aIdx].Cmp(unpackedLinks[o][bIdx]) != 0 {
			t.Fatalf("expected duplicated columns to be equal, got %v", unpackedLinks[o])
		}
	}
}
