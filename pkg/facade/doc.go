/*
Package facade is the library entry point for embedding truss directly
in a Go program rather than shelling out to cmd/truss.

Open reads a pkg/config.Config, opens the state store and object store
beneath its Root, registers any repositories the config lists, and
returns a Facade wrapping a pkg/txn.Manager. Every exported method maps
directly onto one operation from the package manager's external
interface: Install, Remove, Rollback, Update, Verify, Query/List/Search,
Depends/RDepends/WhatBreaks, and the RepoAdd/List/Remove/Enable/Disable/
Sync family. None of Facade's internals - the store, the transaction
manager, the resolver - are reachable from outside the package; a
caller only ever sees changesets, troves, and repositories.
*/
package facade
