/*
Package txn is the Transaction Manager: it drives a Changeset through
Pending -> Applied (or, on failure mid-deploy, a best-effort
compensating removal of whatever it already wrote) and, later,
Applied -> RolledBack.

Manager wraps a pkg/storage.Store, a pkg/cas.Store, a pkg/deploy.Deployer
and a pkg/fetch.Client behind five operations: Install, Remove,
Rollback, Update and Verify. Each one opens one or more SQL
transactions against the store and, within them, drives a sequence of
Command values through apply (see fsm.go) - the same Command{Op,Data}
plus switch-dispatch shape the core's cluster manager used to drive a
replicated Raft log, reused here against a local *sql.Tx. A command
that creates a row with a surrogate id (create_trove, create_changeset)
returns the populated struct so later commands in the same transaction
can reference its id; everything else returns nil.

Every exported operation returns an *Error with a stable Kind (see
errors.go) so a caller can classify a failure - DependencyBreaks on a
refused Remove, ChecksumMismatch on a corrupt download, CycleDetected
on an unresolvable dependency graph - without parsing message text.

Rollback replays a changeset's file_history entries in reverse: an add
is undone by deleting the file, a delete is undone by restoring the
old content from the CAS and redeploying it, and a modify is undone by
redeploying the prior hash over the current one. The reversal is
itself recorded as a new Applied changeset linked back to the target
via ReversedBy, so a rollback can itself be inspected or further
reasoned about - but a changeset can only be rolled back once.

Update checks every targeted trove's repository candidates for a newer
version. For a trove that owns exactly one file, when a worthwhile
PackageDelta is advertised for that version pair and the installed
content still matches the delta's FromHash, it applies the zstd delta
from pkg/delta rather than removing and reinstalling.
Any failure on that path - hash drift, a corrupt delta, a failed
decode - falls back to a full download and ordinary reinstall.
*/
package txn
