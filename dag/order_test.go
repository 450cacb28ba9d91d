package dag

import "testing"

// isPermutation checks got contains exactly the ids 0..n-1, each once.
func isPermutation(t *testing.T, got []Id, n int) {
	t.Helper()
	if len(got) != n {
		t.Fatalf("order has %d ids, want %d", len(got), n)
	}
	seen := make([]bool, n)
	for _, id := range got {
		if id < 0 || id >= n || seen[id] {
			t.Fatalf("order %v is not a permutation of 0..%d", got, n)
		}
		seen[id] = true
	}
}

func isTopological(t *testing.T, d *Dag, order []Id) {
	t.Helper()
	pos := make(map[Id]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, n := range d.Nodes {
		for _, src := range n.Sources {
			if pos[src] >= pos[n.Id] {
				t.Errorf("source %d (pos %d) must precede %d (pos %d)", src, pos[src], n.Id, pos[n.Id])
			}
		}
	}
}

func TestEfficientSort_Chain3IsValidTopologicalOrder(t *testing.T) {
	d := chain3()
	order := d.EfficientSort()
	isPermutation(t, order, len(d.Nodes))
	isTopological(t, d, order)
}

func TestEfficientSort_TwoChainsIsValidTopologicalOrder(t *testing.T) {
	d := twoChains()
	order := d.EfficientSort()
	isPermutation(t, order, len(d.Nodes))
	isTopological(t, d, order)
}

func TestEfficientSort_DemoDagIsValidTopologicalOrder(t *testing.T) {
	d := demoDag()
	order := d.EfficientSort()
	isPermutation(t, order, len(d.Nodes))
	isTopological(t, d, order)
}

func TestEfficientSort_InputsComeFirst(t *testing.T) {
	d := demoDag()
	order := d.EfficientSort()
	if order[0] != 14 {
		t.Errorf("the lone input should be emitted before any op that consumes it, got order[0]=%d", order[0])
	}
}

func TestEfficientSort_IsDeterministic(t *testing.T) {
	d := demoDag()
	first := d.EfficientSort()
	second := demoDag().EfficientSort()
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("efficient_sort is not deterministic: position %d was %d then %d", i, first[i], second[i])
		}
	}
}
