package resolver

import "github.com/cuemby/truss/pkg/types"

// NodeID indexes into Graph's node arena. There are no owning pointers
// between nodes; every relation between them is expressed by id in the
// forward/reverse adjacency maps.
type NodeID int

// Node is one package in the graph, either an installed trove or a
// repository candidate pulled in during breadth-first expansion.
type Node struct {
	Name         string
	Version      string
	Architecture string
	Installed    bool
	TroveID      int64 // 0 when Installed is false
	Missing      bool  // true if no installed trove or repository candidate resolved this name
}

// Edge carries a dependency's kind and raw constraint string, left
// unparsed until a comparison is actually needed.
type Edge struct {
	Kind       types.DependencyKind
	Constraint string
}

// Graph holds an arena of nodes plus forward (depends-on) and reverse
// (depended-on-by) adjacency maps keyed by NodeID, per spec.md §9's
// no-owning-pointers design note.
type Graph struct {
	nodes   []Node
	byName  map[string]NodeID
	forward map[NodeID]map[NodeID]Edge
	reverse map[NodeID][]NodeID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		byName:  map[string]NodeID{},
		forward: map[NodeID]map[NodeID]Edge{},
		reverse: map[NodeID][]NodeID{},
	}
}

// addNode inserts a new node if name hasn't been seen, or updates an
// existing placeholder's metadata once it's actually resolved, and
// returns its id.
func (g *Graph) addNode(n Node) NodeID {
	if id, ok := g.byName[n.Name]; ok {
		existing := g.nodes[id]
		if existing.Missing && !n.Missing {
			g.nodes[id] = n
		}
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.byName[n.Name] = id
	return id
}

// addEdge records that "from" depends on "to" with the given kind and
// constraint, updating both adjacency maps.
func (g *Graph) addEdge(from, to NodeID, e Edge) {
	if g.forward[from] == nil {
		g.forward[from] = map[NodeID]Edge{}
	}
	g.forward[from][to] = e
	g.reverse[to] = append(g.reverse[to], from)
}

// Node returns the node stored at id.
func (g *Graph) Node(id NodeID) Node { return g.nodes[id] }

// Lookup returns the id of the node named name, if any.
func (g *Graph) Lookup(name string) (NodeID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// Len reports how many nodes the graph holds.
func (g *Graph) Len() int { return len(g.nodes) }

// BreakingSet returns the transitive closure over the reverse graph
// from target: every installed trove that would break if target were
// removed, per spec.md §4.4.
func (g *Graph) BreakingSet(target NodeID) []Node {
	visited := map[NodeID]bool{}
	var out []Node
	var walk func(id NodeID)
	walk = func(id NodeID) {
		for _, dependent := range g.reverse[id] {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			out = append(out, g.nodes[dependent])
			walk(dependent)
		}
	}
	walk(target)
	return out
}
