package linker

import "testing"

func TestPrepareSideSortsDescending(t *testing.T) {
	s := prepareSide([]Txo{txo("a", 3), txo("b", 10), txo("c", 5)})
	want := []string{"b", "c", "a"}
	for i, id := range want {
		if s.txos[i].ID != id {
			t.Fatalf("txos[%d] = %s, want %s", i, s.txos[i].ID, id)
		}
	}
}

func TestPrepareSideAggregateValues(t *testing.T) {
	s := prepareSide([]Txo{txo("a", 10), txo("b", 5), txo("c", 2)})
	// After descending sort: a(10) bit0, b(5) bit1, c(2) bit2.
	if s.vals[0] != 0 {
		t.Fatalf("vals[0] = %d, want 0", s.vals[0])
	}
	if s.vals[s.fullMask()] != 17 {
		t.Fatalf("vals[full] = %d, want 17", s.vals[s.fullMask()])
	}
	if s.vals[1] != 10 {
		t.Fatalf("vals[1] (bit0 alone) = %d, want 10", s.vals[1])
	}
	if s.vals[3] != 15 {
		t.Fatalf("vals[3] (bits 0,1) = %d, want 15", s.vals[3])
	}
}

func TestMemberVector(t *testing.T) {
	s := prepareSide([]Txo{txo("a", 10), txo("b", 5)})
	v := s.memberVector(mask(2)) // bit1 only
	if v[0] || !v[1] {
		t.Fatalf("memberVector(2) = %v, want [false true]", v)
	}
}
