package linker

import "testing"

func TestAcceptNoIntrafees(t *testing.T) {
	cases := []struct {
		d, fees int64
		want    bool
	}{
		{0, 1, true},
		{1, 1, true},
		{2, 1, false},
		{-1, 1, false},
	}
	for _, c := range cases {
		if got := accept(c.d, c.fees, Intrafees{}); got != c.want {
			t.Errorf("accept(%d, %d) = %v, want %v", c.d, c.fees, got, c.want)
		}
	}
}

func TestAcceptWithIntrafees(t *testing.T) {
	intra := Intrafees{Maker: 3, Taker: 2}
	cases := []struct {
		d, fees int64
		want    bool
	}{
		{-3, 0, true},
		{-4, 0, false},
		{2, 0, true},
		{3, 0, false},
		{0, 0, true},
	}
	for _, c := range cases {
		if got := accept(c.d, c.fees, intra); got != c.want {
			t.Errorf("accept(%d, %d) with intrafees = %v, want %v", c.d, c.fees, got, c.want)
		}
	}
}

func TestMatchAggregatesByValueScenarioA(t *testing.T) {
	in := prepareSide([]Txo{txo("a", 10), txo("b", 10)})
	out := prepareSide([]Txo{txo("A", 8), txo("B", 2), txo("C", 3), txo("D", 7)})
	md := matchAggregatesByValue(in, out, 0, Intrafees{})

	if len(md.matchedIn) == 0 {
		t.Fatal("expected at least one matched input aggregate")
	}
	full := in.fullMask()
	found := false
	for _, m := range md.matchedIn {
		if m == full {
			found = true
		}
	}
	if !found {
		t.Fatal("full input mask must always be matched trivially")
	}
}
