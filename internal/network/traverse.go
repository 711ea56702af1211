package network

// FindWithin returns the set of customers reachable from source within the
// given degree of separation, excluding source itself. The seen set is local
// to each call, so concurrent searches over a quiescent graph cannot
// contaminate each other.
//
// The expansion rule is deliberately asymmetric at the innermost level: a
// node expanded at remaining degree 1 contributes its neighbors and itself,
// while a node at remaining degree > 1 whose neighbors are all seen (or that
// has no neighbors at all) contributes nothing. One consequence is kept for
// compatibility with existing flag logs: an isolated node searched at
// degree > 1 yields an empty set instead of itself.
func (g *Graph) FindWithin(source int64, degree int) map[int64]struct{} {
	seen := make(map[int64]struct{})
	if degree > 0 {
		g.expand(source, degree, seen)
	}
	delete(seen, source)
	return seen
}

type frontierEntry struct {
	node      int64
	remaining int
}

// expand walks the graph from source, marking reached nodes in seen. The
// explicit stack replaces recursion; the seen set doubles as the visited set,
// so cycles and self-edges terminate.
func (g *Graph) expand(source int64, degree int, seen map[int64]struct{}) {
	stack := []frontierEntry{{node: source, remaining: degree}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.remaining == 1 {
			seen[cur.node] = struct{}{}
			for n := range g.adj[cur.node] {
				seen[n] = struct{}{}
			}
			continue
		}

		for n := range g.adj[cur.node] {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			stack = append(stack, frontierEntry{node: n, remaining: cur.remaining - 1})
		}
	}
}
