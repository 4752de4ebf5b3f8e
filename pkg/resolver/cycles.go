package resolver

type color int

const (
	white color = iota
	gray
	black
)

// findCycle runs a white/gray/black DFS restricted to the candidates
// set (the nodes Kahn's algorithm couldn't peel off) and returns the
// names of one concrete cycle found among them, in traversal order.
func (g *Graph) findCycle(candidates map[NodeID]bool) []string {
	colors := map[NodeID]color{}
	var path []NodeID
	var cycle []NodeID

	var visit func(id NodeID) bool
	visit = func(id NodeID) bool {
		colors[id] = gray
		path = append(path, id)

		targets := make([]NodeID, 0, len(g.forward[id]))
		for to := range g.forward[id] {
			if candidates[to] {
				targets = append(targets, to)
			}
		}
		sortByName(g, targets)

		for _, to := range targets {
			switch colors[to] {
			case white:
				if visit(to) {
					return true
				}
			case gray:
				// Found the back edge; extract the cycle portion of path.
				for i, p := range path {
					if p == to {
						cycle = append([]NodeID(nil), path[i:]...)
						break
					}
				}
				return true
			case black:
				// already fully explored, no cycle through here
			}
		}

		path = path[:len(path)-1]
		colors[id] = black
		return false
	}

	ids := make([]NodeID, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sortByName(g, ids)

	for _, id := range ids {
		if colors[id] == white {
			if visit(id) {
				break
			}
		}
	}

	if len(cycle) == 0 {
		// Shouldn't happen if Kahn's left a non-empty remainder, but
		// fall back to naming every candidate rather than returning
		// an empty, useless error.
		for id := range candidates {
			cycle = append(cycle, id)
		}
		sortByName(g, cycle)
	}

	names := make([]string, len(cycle))
	for i, id := range cycle {
		names[i] = g.nodes[id].Name
	}
	return names
}
