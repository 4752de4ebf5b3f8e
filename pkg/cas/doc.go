/*
Package cas implements the content-addressed object store described in
SPEC_FULL.md §4.1: objects live under <root>/objects/<first-2-hex>/
<remaining-62-hex>, keyed by the SHA-256 of their content, with atomic
temp-then-rename writes so readers never observe a partial object.

Grounded on paultag-go-archive/archive.go's by-hash pool
(objectPath/writeObject/linkObject), generalized from an apt-archive
Release pool to a general-purpose package-manager object store.
*/
package cas
