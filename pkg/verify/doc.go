/*
Package verify reconciles the installed filesystem tree against the
FileRecord rows that describe it: for each file, the on-disk content is
stream-hashed and compared against the recorded SHA-256 (or, for
symlinks, the recorded link target is compared directly), and
classified OK, Modified or Missing.

Trove scopes a run to one installed package; All walks every installed
trove. Both return a Report the caller can render or act on — verify
never repairs a mismatch itself, it only reports it.
*/
package verify
