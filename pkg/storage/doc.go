/*
Package storage is the State Store of spec.md §2: the single
authoritative relational database holding troves, file records,
changesets, file history, content objects, repositories, repository
packages, package deltas, and delta stats.

It is backed by SQLite (database/sql + github.com/mattn/go-sqlite3)
opened in WAL mode, schema managed by the monotonic migrations in
migrations.go. The per-entity method grouping (CreateX/GetX/ListX/
UpdateX/DeleteX) follows cuemby-warren/pkg/storage's Store interface
shape, generalized from BoltDB's JSON-per-bucket rows to SQL tables so
that removal cascades, reference counting, and dependent lookups can be
expressed as joins instead of full bucket scans.

All mutating access for an operation runs inside a single
sql.Tx (serializable isolation via SQLite's default locking), matching
spec.md §4.6's "all database mutations for one changeset occur inside a
single serialisable transaction."
*/
package storage
