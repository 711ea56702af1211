// Package network maintains the undirected customer friendship graph and the
// bounded-degree neighborhood search used for anomaly comparison.
package network

// Graph is an undirected, unweighted graph of customer relationships backed
// by an adjacency map. Edges are unique; self-edges are representable and
// tolerated. Nodes are never removed.
//
// A Graph is not safe for concurrent use; the pipeline serializes access.
type Graph struct {
	adj map[int64]map[int64]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{adj: make(map[int64]map[int64]struct{})}
}

// AddNode ensures id exists in the graph. Idempotent.
func (g *Graph) AddNode(id int64) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[int64]struct{})
	}
}

// AddEdge ensures both endpoints exist and connects them. Idempotent; u == v
// records a self-edge.
func (g *Graph) AddEdge(u, v int64) {
	g.AddNode(u)
	g.AddNode(v)
	g.adj[u][v] = struct{}{}
	g.adj[v][u] = struct{}{}
}

// RemoveEdge disconnects u and v if an edge exists. Removing a missing edge
// is a no-op. Nodes are kept.
func (g *Graph) RemoveEdge(u, v int64) {
	if n, ok := g.adj[u]; ok {
		delete(n, v)
	}
	if n, ok := g.adj[v]; ok {
		delete(n, u)
	}
}

// Contains reports whether id is a node.
func (g *Graph) Contains(id int64) bool {
	_, ok := g.adj[id]
	return ok
}

// Neighbors returns the direct neighbors of id. The result includes id itself
// when a self-edge exists. The returned map is the graph's own adjacency set;
// callers must not mutate it.
func (g *Graph) Neighbors(id int64) map[int64]struct{} {
	return g.adj[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.adj)
}

// EdgeCount returns the number of undirected edges, counting self-edges once.
func (g *Graph) EdgeCount() int {
	total := 0
	for u, neighbors := range g.adj {
		for v := range neighbors {
			if v >= u {
				total++
			}
		}
	}
	return total
}
