package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/truss/pkg/storage"
)

// InstallPlan is the outcome of resolving one or more package names
// against the repository candidate set, per spec.md §4.4.
type InstallPlan struct {
	// Order lists trove names in dependencies-first install order.
	Order []string
	// Missing lists names with no installed trove and no repository
	// candidate.
	Missing []string
}

// RemovalPlan is the outcome of resolving a removal against the
// installed set.
type RemovalPlan struct {
	// Breaking lists the names of installed troves that depend
	// (directly or transitively) on the trove being removed.
	Breaking []string
}

// Plan builds a repository-backed graph rooted at names, checks every
// dependency edge's constraint against its chosen candidate, and
// returns an install plan in dependencies-first order.
//
// Errors returned are an *UnsatisfiableConstraintError or a
// *ConflictingConstraintsError (from the constraint check), a
// *CircularDependencyError (from Graph.TopoSort), or a wrapped
// lower-level storage or context error. Names with no installed trove
// and no repository candidate are not an error: they are listed in
// InstallPlan.Missing.
func Plan(ctx context.Context, q storage.Queryer, names []string) (*InstallPlan, error) {
	g, err := BuildFromRepositories(ctx, q, names)
	if err != nil {
		return nil, err
	}

	if err := checkConstraints(g); err != nil {
		return nil, err
	}

	order, err := g.TopoSort()
	if err != nil {
		return nil, err
	}

	plan := &InstallPlan{}
	for _, id := range order {
		n := g.Node(id)
		if n.Missing {
			plan.Missing = append(plan.Missing, n.Name)
			continue
		}
		plan.Order = append(plan.Order, n.Name)
	}
	sort.Strings(plan.Missing)
	return plan, nil
}

// checkConstraints validates every forward edge's constraint against
// its resolved target's version, and detects two edges into the same
// target with mutually unsatisfiable constraints.
func checkConstraints(g *Graph) error {
	byTarget := map[NodeID][]Edge{}
	for _, targets := range g.forward {
		for to, e := range targets {
			byTarget[to] = append(byTarget[to], e)
		}
	}

	for to, edges := range byTarget {
		target := g.Node(to)
		if target.Missing {
			continue
		}
		var constraints []string
		for _, e := range edges {
			if e.Constraint == "" {
				continue
			}
			constraints = append(constraints, e.Constraint)
			if !SatisfiesConstraint(target.Version, e.Constraint) {
				return &UnsatisfiableConstraintError{Name: target.Name, Constraint: e.Constraint}
			}
		}
		if conflicting(constraints) {
			return &ConflictingConstraintsError{Name: target.Name, Constraints: constraints}
		}
	}
	return nil
}

// conflicting reports whether any two constraints in the set disagree
// on an exact-equality version while both reference one.
func conflicting(constraints []string) bool {
	var exact []string
	for _, c := range constraints {
		fields := splitConstraint(c)
		if len(fields) == 2 && (fields[0] == "=" || fields[0] == "==") {
			exact = append(exact, fields[1])
		}
	}
	for i := 1; i < len(exact); i++ {
		if exact[i] != exact[0] {
			return true
		}
	}
	return false
}

func splitConstraint(c string) []string {
	var fields []string
	field := ""
	for _, r := range c {
		if r == ' ' || r == '\t' {
			if field != "" {
				fields = append(fields, field)
				field = ""
			}
			continue
		}
		field += string(r)
	}
	if field != "" {
		fields = append(fields, field)
	}
	return fields
}

// PlanRemoval builds a graph over the installed set and returns the
// names of every installed trove that would break if name were
// removed. An empty RemovalPlan.Breaking means the removal is safe.
func PlanRemoval(q storage.Queryer, name string) (*RemovalPlan, error) {
	g, err := BuildFromInstalled(q)
	if err != nil {
		return nil, err
	}
	id, ok := g.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("resolver: plan removal: %w", &MissingPackageError{Name: name})
	}

	breaking := g.BreakingSet(id)
	plan := &RemovalPlan{}
	for _, n := range breaking {
		plan.Breaking = append(plan.Breaking, n.Name)
	}
	sort.Strings(plan.Breaking)
	return plan, nil
}
