/*
Package delta generates and applies zstd dictionary-compressed binary
deltas between two versions of a single file's content, so an update
can ship a small transition instead of the full new payload.

Generate compresses the new content using the old content as a zstd
dictionary and reports ErrNotWorthwhile when the result doesn't shrink
the payload enough to bother; Apply reverses the process and verifies
the reconstructed bytes against the expected SHA-256 before handing
them back, returning ErrHashMismatch on any divergence. Both record
their outcome to pkg/metrics so repository sync summaries can report
bytes saved over time.
*/
package delta
