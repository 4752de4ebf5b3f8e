package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// defaultDepthCap bounds how many hops BuildFromRepositories will
// follow before giving up on a dependency chain, guarding against a
// misconfigured repository advertising an unbounded or cyclic closure.
const defaultDepthCap = 10

// BuildFromInstalled builds a graph over every currently installed
// trove and its recorded dependency edges. Names that resolve to no
// installed trove become Missing placeholder nodes.
func BuildFromInstalled(q storage.Queryer) (*Graph, error) {
	troves, err := storage.ListTroves(q)
	if err != nil {
		return nil, fmt.Errorf("resolver: build from installed: %w", err)
	}

	g := NewGraph()
	ids := make(map[int64]NodeID, len(troves))
	for _, t := range troves {
		id := g.addNode(Node{
			Name:         t.Name,
			Version:      t.Version,
			Architecture: t.Architecture,
			Installed:    true,
			TroveID:      t.ID,
		})
		ids[t.ID] = id
	}

	for _, t := range troves {
		deps, err := storage.ListDependencies(q, t.ID)
		if err != nil {
			return nil, fmt.Errorf("resolver: build from installed: %w", err)
		}
		from := ids[t.ID]
		for _, d := range deps {
			to, ok := g.Lookup(d.Name)
			if !ok {
				to = g.addNode(Node{Name: d.Name, Missing: true})
			}
			g.addEdge(from, to, Edge{Kind: d.Kind, Constraint: d.Constraint})
		}
	}
	return g, nil
}

// BuildFromRepositories builds a graph by breadth-first expansion over
// repository candidates starting from seeds, up to defaultDepthCap hops.
// Names already installed are represented as Installed nodes (no further
// expansion needed); names found only in a repository become repository
// candidate nodes, expanded in turn; names found in neither become
// Missing placeholders, which Plan lists in InstallPlan.Missing.
func BuildFromRepositories(ctx context.Context, q storage.Queryer, seeds []string) (*Graph, error) {
	g := NewGraph()
	type queued struct {
		name  string
		depth int
	}
	queue := make([]queued, 0, len(seeds))
	seen := map[string]bool{}
	for _, s := range seeds {
		queue = append(queue, queued{name: s, depth: 0})
		seen[s] = true
	}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		item := queue[0]
		queue = queue[1:]

		installed, err := storage.GetTroveByName(q, item.name)
		if err == nil {
			g.addNode(Node{
				Name:         installed.Name,
				Version:      installed.Version,
				Architecture: installed.Architecture,
				Installed:    true,
				TroveID:      installed.ID,
			})
			continue
		}

		if item.depth >= defaultDepthCap {
			g.addNode(Node{Name: item.name, Missing: true})
			continue
		}

		candidates, err := storage.ListRepositoryPackagesByName(q, item.name)
		if err != nil {
			return nil, fmt.Errorf("resolver: build from repositories: %w", err)
		}
		if len(candidates) == 0 {
			g.addNode(Node{Name: item.name, Missing: true})
			continue
		}

		// Highest priority/version candidate, per
		// storage.ListRepositoryPackagesByName's ordering.
		best := candidates[0]
		from := g.addNode(Node{Name: best.Name, Version: best.Version, Architecture: best.Architecture})

		deps := append([]types.Dependency(nil), best.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
		for _, d := range deps {
			var to NodeID
			if existing, ok := g.Lookup(d.Name); ok {
				to = existing
			} else {
				to = g.addNode(Node{Name: d.Name, Missing: true})
			}
			g.addEdge(from, to, Edge{Kind: d.Kind, Constraint: d.Constraint})
			if !seen[d.Name] {
				seen[d.Name] = true
				queue = append(queue, queued{name: d.Name, depth: item.depth + 1})
			}
		}
	}
	return g, nil
}
