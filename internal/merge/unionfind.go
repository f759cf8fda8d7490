package merge

// unionFind is a disjoint-set forest with path compression and union by
// rank. Ties keep the smaller index as root so grouping is deterministic.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union joins the sets of a and b and reports whether they were distinct.
func (uf *unionFind) union(a, b int) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	switch {
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	default:
		if rb < ra {
			ra, rb = rb, ra
		}
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
	return true
}
