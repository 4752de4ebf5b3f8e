package resolver

import "fmt"

// UnsatisfiableConstraintError reports a dependency edge whose
// constraint no available version of the target satisfies.
type UnsatisfiableConstraintError struct {
	Name       string
	Constraint string
}

func (e *UnsatisfiableConstraintError) Error() string {
	return fmt.Sprintf("resolver: no version of %s satisfies %q", e.Name, e.Constraint)
}

// ConflictingConstraintsError reports two edges into the same target
// whose constraints cannot both hold.
type ConflictingConstraintsError struct {
	Name        string
	Constraints []string
}

func (e *ConflictingConstraintsError) Error() string {
	return fmt.Sprintf("resolver: conflicting constraints on %s: %v", e.Name, e.Constraints)
}

// CircularDependencyError reports the member names of a dependency
// cycle discovered either by Kahn's leftover in-degree set or the DFS
// colouring pass.
type CircularDependencyError struct {
	Members []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("resolver: circular dependency: %v", e.Members)
}

// MissingPackageError reports a dependency name that resolves to no
// installed trove and no repository candidate.
type MissingPackageError struct {
	Name string
}

func (e *MissingPackageError) Error() string {
	return fmt.Sprintf("resolver: missing package %s", e.Name)
}
