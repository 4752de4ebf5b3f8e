package resolver

import "sort"

// TopoSort returns the graph's nodes in dependencies-first order:
// every node appears after everything it depends on.
//
// Forward edges mean "u depends on v", so in-degree(v) counts the
// number of things depending on v. Kahn's algorithm starts from
// indegree-0 nodes (nothing depends on them yet, i.e. the most
// top-level packages) and peels outward, producing a dependents-first
// order; reversing that order yields the dependencies-first order spec.md
// §4.4 wants for an install plan. A non-empty leftover in-degree set
// after the peel signals a cycle among the remaining nodes.
func (g *Graph) TopoSort() ([]NodeID, error) {
	indegree := make([]int, len(g.nodes))
	for _, targets := range g.forward {
		for to := range targets {
			indegree[to]++
		}
	}

	var queue []NodeID
	for id := range g.nodes {
		if indegree[id] == 0 {
			queue = append(queue, NodeID(id))
		}
	}
	sortByName(g, queue)

	order := make([]NodeID, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		var next []NodeID
		for to := range g.forward[n] {
			indegree[to]--
			if indegree[to] == 0 {
				next = append(next, to)
			}
		}
		sortByName(g, next)
		queue = append(queue, next...)
		sortByName(g, queue)
	}

	if len(order) != len(g.nodes) {
		remaining := map[NodeID]bool{}
		for id, deg := range indegree {
			if deg > 0 {
				remaining[NodeID(id)] = true
			}
		}
		members := g.findCycle(remaining)
		return nil, &CircularDependencyError{Members: members}
	}

	// Reverse: Kahn's gave dependents-first, we want dependencies-first.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func sortByName(g *Graph, ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return g.nodes[ids[i]].Name < g.nodes[ids[j]].Name
	})
}
