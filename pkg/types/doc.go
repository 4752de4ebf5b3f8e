/*
Package types defines the core data structures of the package manager
core: the entities listed in spec.md's data model (Trove, Changeset,
FileRecord, ContentObject, FileHistoryEntry, Dependency, Flavor,
Provenance, Repository, RepositoryPackage, PackageDelta,
DeltaStatsEntry).

These types are persisted by pkg/storage, produced by pkg/readers and
pkg/repocatalog, consumed by pkg/resolver and pkg/delta, and mutated
exclusively by pkg/txn. Nothing outside pkg/storage writes them to
disk directly.

# Identity

Most entities use a surrogate integer ID for storage joins plus a
semantic identity documented on the type (Trove is unique on
name+version+arch; ContentObject is keyed by its hex sha256; Repository
is unique on name). FileRecord and FileHistoryEntry are identified by
(owner, path) and (changeset, path) respectively and never carry a
surrogate key of their own.

# Lifecycle

Trove, FileRecord, Dependency, Flavor, and Provenance rows all share the
lifetime of the Changeset that created them: a successful Remove deletes
them via the database's cascade, and a successful Rollback can recreate
FileRecords (from FileHistoryEntry) but not the rest of that row set
(see SPEC_FULL.md's Remove-rollback note).
*/
package types
