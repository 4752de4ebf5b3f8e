/*
Package resolver builds a dependency graph from either the installed
set or a repository's advertised packages and turns it into an
install/removal plan: topological order, missing dependencies,
conflicting constraints, and (for removal) the set of installed troves
that would break.

Restyled from cuemby-warren/pkg/scheduler's bin-packing loop into an
on-demand planner: there is no background ticker here, resolution runs
synchronously once per install/remove/update call.
*/
package resolver
